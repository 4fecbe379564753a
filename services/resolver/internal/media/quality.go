package media

import "strings"

// Quality is a normalized vertical resolution bucket.
type Quality string

const (
	Quality144p    Quality = "144p"
	Quality240p    Quality = "240p"
	Quality360p    Quality = "360p"
	Quality480p    Quality = "480p"
	Quality720p    Quality = "720p"
	Quality1080p   Quality = "1080p"
	Quality1440p   Quality = "1440p"
	Quality2160p   Quality = "2160p"
	Quality4320p   Quality = "4320p"
	QualityUnknown Quality = "UNKNOWN"
)

var qualityAliases = map[string]Quality{
	"7680x4320": Quality4320p, "4320p": Quality4320p, "8k": Quality4320p,
	"4096x2160": Quality2160p, "3840x2160": Quality2160p, "2160p": Quality2160p,
	"ultrahd": Quality2160p, "uhd": Quality2160p, "4k": Quality2160p,
	"2560x1440": Quality1440p, "1440p": Quality1440p, "quadhd": Quality1440p,
	"wqhd": Quality1440p, "qhd": Quality1440p,
	"1920x1080": Quality1080p, "1080p": Quality1080p, "fullhd": Quality1080p, "fhd": Quality1080p,
	"1280x720": Quality720p, "720p": Quality720p, "hd": Quality720p,
	"854x480": Quality480p, "480p": Quality480p,
	"640x360": Quality360p, "360p": Quality360p,
	"426x240": Quality240p, "240p": Quality240p,
	"144p": Quality144p,
}

// ParseQuality normalizes strings such as "1920x1080", "FHD" or "720p".
// Anything unrecognized maps to QualityUnknown.
func ParseQuality(s string) Quality {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if q, ok := qualityAliases[b.String()]; ok {
		return q
	}
	return QualityUnknown
}
