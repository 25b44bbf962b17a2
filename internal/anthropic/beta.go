package anthropic

import (
	"context"
	"log/slog"
	"slices"
	"strings"
)

// FilterBetaFlags parses a comma-separated anthropic-beta header value and
// keeps only the flags present in the operator-configured whitelist. The
// result preserves whitelist order; dropped flags are logged. An empty
// result is nil.
func FilterBetaFlags(ctx context.Context, header string, whitelist []string) []string {
	if header == "" {
		return nil
	}

	var requested []string
	for _, flag := range strings.Split(header, ",") {
		if flag = strings.TrimSpace(flag); flag != "" {
			requested = append(requested, flag)
		}
	}

	var allowed, dropped []string
	for _, flag := range whitelist {
		if slices.Contains(requested, flag) {
			allowed = append(allowed, flag)
		}
	}
	for _, flag := range requested {
		if !slices.Contains(whitelist, flag) {
			dropped = append(dropped, flag)
		}
	}

	if len(dropped) > 0 {
		slog.InfoContext(ctx, "dropping beta flags not in whitelist", "flags", dropped)
	}
	return allowed
}
