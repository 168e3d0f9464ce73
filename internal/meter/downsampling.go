package meter

import (
	"fmt"
	"strings"
	"time"

	"github.com/Avi18971911/Tracelane/internal/segment/model"
)

type Downsampling string

const (
	Minute Downsampling = "minute"
	Hour   Downsampling = "hour"
	Day    Downsampling = "day"
)

func (d Downsampling) width() int64 {
	switch d {
	case Hour:
		return time.Hour.Milliseconds()
	case Day:
		return 24 * time.Hour.Milliseconds()
	default:
		return time.Minute.Milliseconds()
	}
}

// Bucket floors epoch milliseconds to the start of the enclosing bucket in UTC.
func (d Downsampling) Bucket(epochMillis int64) int64 {
	return model.FloorTimeBucket(epochMillis, d.width())
}

// Closed reports whether no more samples can fall into bucket at now.
func (d Downsampling) Closed(bucket int64, now time.Time) bool {
	return bucket+d.width() <= now.UnixMilli()
}

func ParseDownsampling(s string) (Downsampling, error) {
	switch d := Downsampling(strings.ToLower(strings.TrimSpace(s))); d {
	case Minute, Hour, Day:
		return d, nil
	default:
		return "", fmt.Errorf("unknown downsampling %q", s)
	}
}
