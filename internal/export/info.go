package export

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"go.uber.org/zap"
)

// Info is the export's metadata block: when the archive was exported plus the
// subject's characteristics from the Me node, with the HK identifier noise
// stripped from keys and values.
type Info struct {
	ExportDate      time.Time
	Characteristics map[string]string
}

const characteristicPrefix = "HKCharacteristicTypeIdentifier"

// extractInfo reads the Me and ExportDate nodes. Both are optional: absence
// is recovered with a warning and a zero value, per the degrade-and-warn
// policy for metadata.
func (e *Extractor) extractInfo(ar *archive) Info {
	info := Info{Characteristics: make(map[string]string)}

	if me := ar.nodesFor("Me"); len(me) > 0 {
		for key, value := range me[0] {
			key = strings.ReplaceAll(key, characteristicPrefix, "")
			value = strings.ReplaceAll(value, key, "")
			value = strings.ReplaceAll(value, "HK", "")
			info.Characteristics[key] = value
		}
	} else {
		e.logger.Warn("no Me node in export")
	}

	exportNodes := ar.nodesFor("ExportDate")
	if len(exportNodes) == 0 || exportNodes[0]["value"] == "" {
		e.logger.Warn("export date not available")
		return info
	}
	parsed, err := dateparse.ParseAny(exportNodes[0]["value"])
	if err != nil {
		e.logger.Warn("export date not parseable", zap.String("value", exportNodes[0]["value"]), zap.Error(err))
		return info
	}
	info.ExportDate = parsed
	return info
}
