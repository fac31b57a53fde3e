// Package record defines the unit of work that flows through the indexing
// pipeline and the field-name contract shared with the store.
package record

import (
	"crypto/sha256"
	"encoding/hex"
	"maps"

	"github.com/Aman-CERP/imagedex/internal/geo"
)

// Field names written for every indexed record.
const (
	FieldIdentifier = "identifier"
	FieldDBID       = "db_id"
	FieldTitle      = "title"
	FieldTags       = "tags"
	FieldLocation   = "location"
	FieldLongitude  = "lng"
	FieldLatitude   = "lat"
	FieldFileRef    = "file"
)

// MetadataFieldNames lists the fields owned by the record itself.
// Feature builders may not overwrite them.
var MetadataFieldNames = []string{
	FieldIdentifier,
	FieldDBID,
	FieldTitle,
	FieldTags,
	FieldLocation,
	FieldLongitude,
	FieldLatitude,
	FieldFileRef,
}

// Fields maps field names to stored string values.
type Fields map[string]string

// Clone returns a shallow copy of f.
func (f Fields) Clone() Fields {
	if f == nil {
		return Fields{}
	}
	return maps.Clone(f)
}

// Record is one image plus its descriptive and geographic metadata.
//
// A Record is mutated only by the loader, which attaches Payload. Once it is
// queued for feature extraction it is treated as read-only.
type Record struct {
	ID       string `json:"id,omitempty" yaml:"id"`
	FileRef  string `json:"file,omitempty" yaml:"file"`
	Title    string `json:"title,omitempty" yaml:"title"`
	Tags     string `json:"tags,omitempty" yaml:"tags"`
	Location string `json:"location,omitempty" yaml:"location"`
	Lat      string `json:"lat,omitempty" yaml:"lat"`
	Lng      string `json:"lng,omitempty" yaml:"lng"`

	// Payload holds the raw image bytes between load and feature extraction.
	Payload []byte `json:"-" yaml:"-"`
}

// Identity returns the stable key used to deduplicate search results.
// The external ID wins; otherwise a hash of the file reference (or title) is used.
func (r *Record) Identity() string {
	switch {
	case r.ID != "":
		return r.ID
	case r.FileRef != "":
		return hashString("file:" + r.FileRef)
	case r.Title != "":
		return hashString("title:" + r.Title)
	default:
		return ""
	}
}

// Coordinate parses the record's latitude and longitude.
// Missing or malformed values yield geo.ErrNoCoordinate.
func (r *Record) Coordinate() (geo.Coordinate, error) {
	return geo.Parse(r.Lat, r.Lng)
}

// MetadataFields returns the metadata fields appended for this record.
// Empty values are omitted.
func (r *Record) MetadataFields() Fields {
	f := Fields{FieldIdentifier: r.Identity()}
	put := func(name, value string) {
		if value != "" {
			f[name] = value
		}
	}
	put(FieldDBID, r.ID)
	put(FieldTitle, r.Title)
	put(FieldTags, r.Tags)
	put(FieldLocation, r.Location)
	put(FieldLongitude, r.Lng)
	put(FieldLatitude, r.Lat)
	put(FieldFileRef, r.FileRef)
	return f
}

// Release drops the payload once the consumer stage is done with it.
func (r *Record) Release() {
	r.Payload = nil
}

// FromFields rebuilds the metadata view of a stored record.
// Used for query-by-record searches.
func FromFields(f Fields) *Record {
	return &Record{
		ID:       f[FieldDBID],
		FileRef:  f[FieldFileRef],
		Title:    f[FieldTitle],
		Tags:     f[FieldTags],
		Location: f[FieldLocation],
		Lat:      f[FieldLatitude],
		Lng:      f[FieldLongitude],
	}
}

// hashString returns the first 16 hex chars of the SHA256 of s.
func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])[:16]
}
