package mcp

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/imagedex/internal/record"
	"github.com/Aman-CERP/imagedex/pkg/searcher"
)

// FormatHits renders ranked images as markdown under a heading naming the query.
func FormatHits(query string, hits []searcher.Hit) string {
	if len(hits) == 0 {
		return fmt.Sprintf("No images found for %s", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Images similar to %s\n\n", query)
	fmt.Fprintf(&sb, "Found %d result", len(hits))
	if len(hits) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, h := range hits {
		formatHit(&sb, i+1, h)
	}
	return sb.String()
}

// formatHit writes one hit: a header line then one line per populated field.
func formatHit(sb *strings.Builder, num int, h searcher.Hit) {
	title := h.Fields[record.FieldTitle]
	if title == "" {
		title = "(untitled)"
	}
	fmt.Fprintf(sb, "### %d. %s `%s` (score: %.2f)\n", num, title, h.Identity, h.Score)

	if tags := h.Fields[record.FieldTags]; tags != "" {
		fmt.Fprintf(sb, "**Tags:** %s\n", tags)
	}
	if loc := h.Fields[record.FieldLocation]; loc != "" {
		fmt.Fprintf(sb, "**Location:** %s\n", loc)
	}
	lat, lng := h.Fields[record.FieldLatitude], h.Fields[record.FieldLongitude]
	hasDistance := h.Distance > 0 && isGeoOnly(h)
	switch {
	case lat != "" && lng != "":
		fmt.Fprintf(sb, "**Coordinates:** %s, %s", lat, lng)
		if hasDistance {
			fmt.Fprintf(sb, " (%.2f km)", h.Distance)
		}
		sb.WriteString("\n")
	case hasDistance:
		fmt.Fprintf(sb, "**Distance:** (%.2f km)\n", h.Distance)
	}
	if file := h.Fields[record.FieldFileRef]; file != "" {
		fmt.Fprintf(sb, "**File:** %s\n", file)
	}
	if len(h.Sources) > 0 {
		fmt.Fprintf(sb, "**Matched by:** %s\n", strings.Join(h.Sources, ", "))
	}
	sb.WriteString("\n")
}

// isGeoOnly reports whether h came straight from the geo searcher, so that
// Distance is in kilometres. Fused hits list their sources and carry no distance.
func isGeoOnly(h searcher.Hit) bool {
	return len(h.Sources) == 0
}

// ToHitOutput converts a hit to the structured tool output.
func ToHitOutput(h searcher.Hit) HitOutput {
	out := HitOutput{
		Identifier: h.Identity,
		Title:      h.Fields[record.FieldTitle],
		Tags:       h.Fields[record.FieldTags],
		Location:   h.Fields[record.FieldLocation],
		Lat:        h.Fields[record.FieldLatitude],
		Lng:        h.Fields[record.FieldLongitude],
		File:       h.Fields[record.FieldFileRef],
		Score:      h.Score,
		Sources:    h.Sources,
	}
	if id := h.Fields[record.FieldIdentifier]; id != "" {
		out.Identifier = id
	}
	if out.File != "" {
		out.MIMEType = MimeTypeForPath(out.File)
	}
	if isGeoOnly(h) {
		out.DistanceKM = h.Distance
	}
	return out
}

// toSearchOutput converts hits to the structured output of a search tool.
func toSearchOutput(hits []searcher.Hit) SearchOutput {
	out := SearchOutput{Results: make([]HitOutput, 0, len(hits))}
	for _, h := range hits {
		out.Results = append(out.Results, ToHitOutput(h))
	}
	return out
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}
