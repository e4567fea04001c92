// Package classify decides whether an uploaded image is a genuine outdoor
// litter scene and, if so, how severe the litter density is.
package classify

import (
	"context"
	"strings"

	"github.com/snapmap-io/snapmap/internal/storage"
)

// rejectToken is the exact model output that marks an invalid upload.
const rejectToken = "TRASH"

// Verdict is the outcome of classifying one image. A rejected verdict
// carries no category.
type Verdict struct {
	Rejected bool
	Category storage.Category
}

// Classifier analyzes an image and returns a verdict.
type Classifier interface {
	Classify(ctx context.Context, image []byte) (Verdict, error)
}

// ParseVerdict interprets raw model output. The model is instructed to
// answer with a single token, but real responses drift: extra whitespace,
// prose around the answer, or punctuation. Anything containing a usable
// digit is salvaged; everything else is treated as a rejection.
func ParseVerdict(raw string) Verdict {
	text := strings.ToUpper(strings.TrimSpace(raw))

	switch text {
	case rejectToken:
		return Verdict{Rejected: true}
	case "1", "2", "3", "4":
		return Verdict{Category: storage.Category(text[0] - '0')}
	}

	for _, r := range text {
		if r >= '1' && r <= '4' {
			return Verdict{Category: storage.Category(r - '0')}
		}
	}

	return Verdict{Rejected: true}
}
