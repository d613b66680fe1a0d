package export

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"go.uber.org/zap"
)

const (
	exportFileName = "export.xml"
	routesDirName  = "workout-routes"
)

var fileDatePattern = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`)

// Route files without a date in their name sort far in the future so a
// cutoff never drops them silently.
var missingFileDate = time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)

// Node is one raw export element: its category tag and the attribute mapping
// exactly as authored.
type Node struct {
	Category string
	Attrs    map[string]string
}

// archive is the filtered view of one export directory: the node list in
// document order plus the route files that survived the date filter.
type archive struct {
	nodes    []Node
	gpxFiles []string
}

// nodesFor returns the raw attribute mappings of every node in the category,
// preserving document order.
func (a *archive) nodesFor(category string) []map[string]string {
	var out []map[string]string
	for _, node := range a.nodes {
		if node.Category == category {
			out = append(out, node.Attrs)
		}
	}
	return out
}

func (a *archive) countNodes(categories ...string) int {
	wanted := make(map[string]bool, len(categories))
	for _, c := range categories {
		wanted[c] = true
	}
	n := 0
	for _, node := range a.nodes {
		if wanted[node.Category] {
			n++
		}
	}
	return n
}

// readArchive loads export.xml and the route file listing, applying the
// optional date cutoff to both.
func (e *Extractor) readArchive() (*archive, error) {
	nodes, err := e.readNodes()
	if err != nil {
		return nil, err
	}
	gpxFiles, err := e.listRouteFiles()
	if err != nil {
		return nil, err
	}
	return &archive{nodes: nodes, gpxFiles: gpxFiles}, nil
}

// readNodes decodes every element whose tag the template declares, at any
// depth, so exports with routes nested inside workouts and exports with
// top-level routes both work.
func (e *Extractor) readNodes() ([]Node, error) {
	path := filepath.Join(e.dir, exportFileName)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open export: %w", err)
	}
	defer f.Close()

	wanted := make(map[string]bool)
	for _, name := range e.tmpl.Categories() {
		wanted[name] = true
	}

	var nodes []Node
	dec := xml.NewDecoder(f)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", exportFileName, err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || !wanted[start.Name.Local] {
			continue
		}
		attrs := make(map[string]string, len(start.Attr))
		for _, attr := range start.Attr {
			attrs[attr.Name.Local] = attr.Value
		}
		node := Node{Category: start.Name.Local, Attrs: attrs}

		if e.from.IsZero() {
			nodes = append(nodes, node)
			continue
		}
		keep, err := e.keepNode(node)
		if err != nil {
			return nil, err
		}
		if keep {
			nodes = append(nodes, node)
		}
	}
	e.logger.Info("read export nodes", zap.Int("count", len(nodes)))
	return nodes, nil
}

// keepNode applies the cutoff: records, workouts and routes compare their
// creation instant against the cutoff in the reference timezone; activity
// summaries and file references compare as local dates; every other category
// is always kept.
func (e *Extractor) keepNode(node Node) (bool, error) {
	switch node.Category {
	case "Record", "Workout", "WorkoutRoute":
		created, err := dateparse.ParseAny(node.Attrs["creationDate"])
		if err != nil {
			return false, fmt.Errorf("%s creationDate: %w", node.Category, err)
		}
		return !created.Before(e.from), nil
	case "ActivitySummary":
		day, err := dateparse.ParseAny(node.Attrs["dateComponents"])
		if err != nil {
			return false, fmt.Errorf("ActivitySummary dateComponents: %w", err)
		}
		return !day.Before(e.fromLocal()), nil
	case "FileReference":
		return !e.fileDate(node.Attrs["path"]).Before(e.fromLocal()), nil
	default:
		return true, nil
	}
}

// fromLocal strips the zone from the cutoff for comparisons against
// zone-less export dates.
func (e *Extractor) fromLocal() time.Time {
	local := e.from.In(e.loc)
	return time.Date(local.Year(), local.Month(), local.Day(),
		local.Hour(), local.Minute(), local.Second(), local.Nanosecond(), time.UTC)
}

// fileDate extracts the YYYY-MM-DD date embedded in a route filename.
func (e *Extractor) fileDate(name string) time.Time {
	match := fileDatePattern.FindStringSubmatch(name)
	if match == nil {
		e.logger.Info("no date found in filename", zap.String("filename", name))
		return missingFileDate
	}
	parsed, err := time.Parse("2006-01-02", match[1])
	if err != nil {
		e.logger.Info("no date found in filename", zap.String("filename", name))
		return missingFileDate
	}
	return parsed
}

// listRouteFiles returns the .gpx files under workout-routes, filtered by
// the cutoff when set. A missing routes directory is not an error.
func (e *Extractor) listRouteFiles() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(e.dir, routesDirName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list route files: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".gpx") {
			continue
		}
		if !e.from.IsZero() && e.fileDate(entry.Name()).Before(e.fromLocal()) {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	return files, nil
}
