package model

// LinkStatusActive marks a catalog entry that may be sent to requesters.
const LinkStatusActive = "ACTIVE"

// LinkEntry is one downloadable artifact in the link catalog.
type LinkEntry struct {
	URL      string `yaml:"url" json:"url"`
	Platform string `yaml:"platform" json:"platform"`
	Locale   string `yaml:"locale" json:"locale"`
	Arch     string `yaml:"arch" json:"arch"`
	Version  string `yaml:"version" json:"version"`
	Provider string `yaml:"provider" json:"provider"`
	Status   string `yaml:"status" json:"status"`
	FileName string `yaml:"filename" json:"filename"`
}

// SignatureURL is the detached signature published next to the artifact.
func (l LinkEntry) SignatureURL() string {
	return l.URL + ".asc"
}

// StatsRecord is an aggregate request counter for one day bucket.
type StatsRecord struct {
	Platform string `json:"platform"`
	Locale   string `json:"locale"`
	Command  string `json:"command"`
	Channel  string `json:"channel"`
	Date     string `json:"date"`
	Count    int64  `json:"count"`
}
