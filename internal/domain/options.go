package domain

// Meta carries the strategy-specific options of a resource descriptor.
// Fields are meaningful only to the strategy family that reads them; unknown
// combinations are ignored rather than rejected.
type Meta struct {
	// HTTP family
	Mirrors  []string          // alternate URLs serving the same artifact
	Cookies  map[string]string // sent verbatim on every request
	Referer  string
	User     string   // "user:password" for basic auth
	Headers  []string // raw "Name: value" lines
	Data     map[string]string // POST payload (post strategy)
	DataJSON bool              // send Data as a JSON object instead of a form
	Basename string            // pre-resolved artifact basename (registry blobs)

	// VCS family
	Tag        string
	Branch     string
	Revision   string
	Revisions  map[string]string // module→revision for multi-module checkouts
	Submodules bool
	OnlyPaths  []string // sparse-checkout path prefixes
	TrustCert  bool     // accept untrusted server certificates (svn)
	Module     string   // module name override (cvs)
}

// ExtractRef resolves the descriptor's ref selector with the given priority
// order. The first populated selector wins; Revisions carries the whole map.
func (m Meta) ExtractRef(priority ...RefType) Ref {
	for _, t := range priority {
		switch t {
		case RefTag:
			if m.Tag != "" {
				return Ref{Type: RefTag, Value: m.Tag}
			}
		case RefBranch:
			if m.Branch != "" {
				return Ref{Type: RefBranch, Value: m.Branch}
			}
		case RefRevision:
			if m.Revision != "" {
				return Ref{Type: RefRevision, Value: m.Revision}
			}
		case RefRevisions:
			if len(m.Revisions) > 0 {
				return Ref{Type: RefRevisions, Value: m.Revisions[TrunkKey], Revisions: m.Revisions}
			}
		}
	}
	return Ref{}
}

// RequestOptions shape one HTTP exchange issued on behalf of a strategy.
type RequestOptions struct {
	Headers map[string]string
	Cookies map[string]string
	Referer string
	User    string // "user:password" basic auth, dropped when StripAuth is set
}

// DownloadOptions extend RequestOptions for body transfers.
type DownloadOptions struct {
	RequestOptions
	Resume    bool              // continue a partial temporary file via Range
	StripAuth bool              // never send credentials (a redirect was observed)
	PostData  map[string]string // non-nil switches the transfer to POST
	PostJSON  bool              // encode PostData as JSON instead of a form
	Quiet     bool              // suppress the progress bar
}
