package export

import (
	"fmt"
	"path"
	"path/filepath"

	"github.com/tkrajina/gpxgo/gpx"
	"go.uber.org/zap"

	"example.com/healthexport/internal/table"
)

// buildRoutes decodes every surviving route file into track-point rows and
// inner-joins them with the route metadata on the referenced file path. With
// no metadata available the point table is returned unjoined with a warning.
//
// Route metadata keeps its raw attribute names: FileReference and
// WorkoutRoute nodes are positional companions, not template categories with
// canonical schemas.
func (e *Extractor) buildRoutes(ar *archive) (*table.Table, error) {
	points, err := e.readTrackPoints(ar.gpxFiles)
	if err != nil {
		return nil, err
	}

	base := routeBase(ar)
	tbl := &table.Table{Name: "Route"}
	if len(base) == 0 {
		e.logger.Warn("no WorkoutRoute metadata in export, returning unjoined track points")
		tbl.Rows = points
		return tbl, nil
	}

	for _, meta := range base {
		refPath, _ := meta["path"].(string)
		for _, point := range points {
			if point["filename"] != refPath {
				continue
			}
			row := make(table.Row, len(meta)+len(point))
			for name, value := range meta {
				row[name] = value
			}
			for name, value := range point {
				row[name] = value
			}
			tbl.Rows = append(tbl.Rows, row)
		}
	}
	e.logger.Info("built table", zap.String("category", "Route"), zap.Int("rows", tbl.Len()))
	return tbl, nil
}

// routeBase joins FileReference and WorkoutRoute nodes by document position.
// The join is inner: a reference without a matching route node is dropped.
func routeBase(ar *archive) []table.Row {
	refs := ar.nodesFor("FileReference")
	routes := ar.nodesFor("WorkoutRoute")

	n := min(len(refs), len(routes))
	base := make([]table.Row, 0, n)
	for i := 0; i < n; i++ {
		row := table.Row{}
		for name, value := range refs[i] {
			row[name] = value
		}
		for name, value := range routes[i] {
			row[name] = value
		}
		base = append(base, row)
	}
	return base
}

// readTrackPoints flattens the first track segment of every route file into
// (filename, latitude, longitude, elevation, time) rows. Decode failures are
// fatal: a corrupt track aborts the route build.
func (e *Extractor) readTrackPoints(files []string) ([]table.Row, error) {
	var points []table.Row
	for _, name := range files {
		parsed, err := gpx.ParseFile(filepath.Join(e.dir, routesDirName, name))
		if err != nil {
			return nil, fmt.Errorf("parse route file %s: %w", name, err)
		}
		if len(parsed.Tracks) == 0 || len(parsed.Tracks[0].Segments) == 0 {
			continue
		}
		filename := path.Join("/"+routesDirName, name)
		for _, point := range parsed.Tracks[0].Segments[0].Points {
			points = append(points, table.Row{
				"filename":  filename,
				"latitude":  point.Latitude,
				"longitude": point.Longitude,
				"elevation": point.Elevation.Value(),
				"time":      point.Timestamp,
			})
		}
	}
	return points, nil
}
