// Package searcher provides the searchers behind similar-image retrieval.
//
// This package implements the Searcher interface with multiple implementations:
//
//   - [GeoSearcher]: great-circle distance to the query coordinate
//   - [TextSearcher]: full-text match over title, tags and location (bleve)
//   - [DescriptorSearcher]: nearest feature descriptors (HNSW)
//   - [FusionSearcher]: weighted positional fusion of any of the above
//
// # Architecture
//
// Every searcher reads the same store independently; the fusion searcher
// only sees their ranked lists:
//
//	┌───────────────────────────────────────────────────────────┐
//	│                      FusionSearcher                       │
//	│  ┌────────────┐   ┌─────────────┐   ┌──────────────────┐  │
//	│  │GeoSearcher │   │TextSearcher │   │DescriptorSearcher│  │
//	│  │store.Reader│   │ TextIndex   │   │ DescriptorIndex  │  │
//	│  └────────────┘   └─────────────┘   └──────────────────┘  │
//	│       3/(rank+1) * weight, summed per record identity     │
//	└───────────────────────────────────────────────────────────┘
//
// # Usage
//
//	geo, _ := searcher.NewGeoSearcher(
//	    searcher.WithGeoReader(st),
//	    searcher.WithGeoThreshold(3, 1),
//	)
//	text, _ := searcher.NewTextSearcher(
//	    searcher.WithTextIndex(textIdx),
//	    searcher.WithTextReader(st),
//	    searcher.WithTextWeight(0.5),
//	)
//	fusion, _ := searcher.NewFusionSearcher(searcher.WithSearchers(geo, text))
//
//	hits, err := fusion.Search(ctx, searcher.QueryFromFields(fields), 10)
//
// # Not-applicable queries
//
// A searcher given a query it cannot use (no coordinate, no text, no
// descriptor) returns ErrNotApplicable. The fusion searcher treats that,
// and any other constituent failure, as an empty list.
//
// # Thread Safety
//
// All Searcher implementations are safe for concurrent use.
package searcher
