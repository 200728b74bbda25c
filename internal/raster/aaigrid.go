package raster

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// defaultNoData is the conventional AAIGrid sentinel when the header omits
// NODATA_value.
const defaultNoData = -9999.0

// ASCIIGrid is a parsed ESRI ASCII grid (AAIGrid). Center-registered
// headers (xllcenter/yllcenter) are normalized to corner registration on
// parse. Data is row-major with row 0 northernmost, matching the file
// layout.
type ASCIIGrid struct {
	Cols     int
	Rows     int
	XLL      float64 // west edge, degrees
	YLL      float64 // south edge, degrees
	CellSize float64 // degrees, square cells
	NoData   float64
	Data     []float64
}

// ParseASCIIGrid reads an AAIGrid document: header lines of `key value`
// pairs followed by Rows lines of Cols whitespace-separated numbers. A row
// with fewer values than the header declares is a *DecodeError.
func ParseASCIIGrid(r io.Reader) (*ASCIIGrid, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	g := &ASCIIGrid{NoData: defaultNoData}
	var haveCols, haveRows, haveX, haveY, haveCell, centerX, centerY bool

	// Header: key/value lines until the first line starting with a number.
	var firstDataLine string
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		key := strings.ToLower(fields[0])
		if !isHeaderKey(key) {
			firstDataLine = line
			break
		}
		if len(fields) != 2 {
			return nil, decodeErrorf("aaigrid", "malformed header line %q", line)
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, &DecodeError{Format: "aaigrid", Reason: fmt.Sprintf("header value %q", line), Err: err}
		}

		switch key {
		case "ncols":
			g.Cols, haveCols = int(v), true
		case "nrows":
			g.Rows, haveRows = int(v), true
		case "xllcorner":
			g.XLL, haveX = v, true
		case "xllcenter":
			g.XLL, haveX, centerX = v, true, true
		case "yllcorner":
			g.YLL, haveY = v, true
		case "yllcenter":
			g.YLL, haveY, centerY = v, true, true
		case "cellsize":
			g.CellSize, haveCell = v, true
		case "nodata_value":
			g.NoData = v
		}
	}
	if err := sc.Err(); err != nil {
		return nil, &DecodeError{Format: "aaigrid", Reason: "read input", Err: err}
	}

	if !haveCols || !haveRows || !haveX || !haveY || !haveCell {
		return nil, decodeErrorf("aaigrid", "incomplete header (ncols/nrows/xll/yll/cellsize required)")
	}
	if g.Cols <= 0 || g.Rows <= 0 || g.CellSize <= 0 {
		return nil, decodeErrorf("aaigrid", "non-positive dimensions or cell size")
	}
	if centerX {
		g.XLL -= g.CellSize / 2
	}
	if centerY {
		g.YLL -= g.CellSize / 2
	}

	g.Data = make([]float64, 0, g.Cols*g.Rows)
	row := 0
	appendRow := func(line string) error {
		if row >= g.Rows {
			// GIS tools pad trailing newlines; anything non-empty is excess.
			return decodeErrorf("aaigrid", "more than %d data rows", g.Rows)
		}
		fields := strings.Fields(line)
		if len(fields) < g.Cols {
			return decodeErrorf("aaigrid", "row %d has %d values, header declares %d", row, len(fields), g.Cols)
		}
		for _, f := range fields[:g.Cols] {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return &DecodeError{Format: "aaigrid", Reason: fmt.Sprintf("row %d value %q", row, f), Err: err}
			}
			g.Data = append(g.Data, v)
		}
		row++
		return nil
	}

	if firstDataLine != "" {
		if err := appendRow(firstDataLine); err != nil {
			return nil, err
		}
	}
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := appendRow(line); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, &DecodeError{Format: "aaigrid", Reason: "read input", Err: err}
	}
	if row != g.Rows {
		return nil, decodeErrorf("aaigrid", "got %d data rows, header declares %d", row, g.Rows)
	}

	return g, nil
}

func isHeaderKey(key string) bool {
	switch key {
	case "ncols", "nrows", "xllcorner", "xllcenter", "yllcorner", "yllcenter", "cellsize", "nodata_value":
		return true
	}
	return false
}

// WriteTo emits the grid in the canonical AAIGrid layout, one `key value`
// header line per field, so output round-trips through common GIS tooling.
func (g *ASCIIGrid) WriteTo(w io.Writer) (int64, error) {
	var total int64

	write := func(format string, args ...any) error {
		n, err := fmt.Fprintf(w, format, args...)
		total += int64(n)
		return err
	}

	if err := write("ncols %d\n", g.Cols); err != nil {
		return total, err
	}
	if err := write("nrows %d\n", g.Rows); err != nil {
		return total, err
	}
	if err := write("xllcorner %s\n", formatValue(g.XLL)); err != nil {
		return total, err
	}
	if err := write("yllcorner %s\n", formatValue(g.YLL)); err != nil {
		return total, err
	}
	if err := write("cellsize %s\n", formatValue(g.CellSize)); err != nil {
		return total, err
	}
	if err := write("NODATA_value %s\n", formatValue(g.NoData)); err != nil {
		return total, err
	}

	var sb strings.Builder
	for r := 0; r < g.Rows; r++ {
		sb.Reset()
		for c := 0; c < g.Cols; c++ {
			if c > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(formatValue(g.Data[r*g.Cols+c]))
		}
		sb.WriteByte('\n')
		if err := write("%s", sb.String()); err != nil {
			return total, err
		}
	}
	return total, nil
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Samples converts the grid to elevation samples at cell centers. Cells
// holding the NoData sentinel, or implausible elevations, become NoData
// samples.
func (g *ASCIIGrid) Samples() []Sample {
	samples := make([]Sample, 0, len(g.Data))
	for r := 0; r < g.Rows; r++ {
		lat := g.YLL + (float64(g.Rows-1-r)+0.5)*g.CellSize
		for c := 0; c < g.Cols; c++ {
			lon := g.XLL + (float64(c)+0.5)*g.CellSize
			v := g.Data[r*g.Cols+c]

			s := Sample{Lon: lon, Lat: lat, Elevation: v}
			if v == g.NoData || !plausible(v) {
				s.Elevation = 0
				s.NoData = true
			}
			samples = append(samples, s)
		}
	}
	return samples
}

// Bounds returns the grid's geographic rectangle (corner registration).
func (g *ASCIIGrid) Bounds() (south, north, west, east float64) {
	return g.YLL, g.YLL + float64(g.Rows)*g.CellSize,
		g.XLL, g.XLL + float64(g.Cols)*g.CellSize
}
