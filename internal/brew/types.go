package brew

// brewListOutput represents the structure of `brew info --json=v2 --installed` output
type brewListOutput struct {
	Formulae []brewFormula `json:"formulae"`
	Casks    []brewCask    `json:"casks"`
}

// brewFormula represents a Homebrew formula in JSON output
type brewFormula struct {
	Name      string                 `json:"name"`
	FullName  string                 `json:"full_name"`
	Tap       string                 `json:"tap"`
	Revision  int64                  `json:"revision"`
	Versions  brewVersions           `json:"versions"`
	Installed []brewInstalledVersion `json:"installed"`
	LinkedKeg string                 `json:"linked_keg,omitempty"`
}

// brewVersions holds the versions known to the formula's tap
type brewVersions struct {
	Stable string `json:"stable"`
}

// brewInstalledVersion represents an installed keg
type brewInstalledVersion struct {
	Version string `json:"version"`
	Time    int64  `json:"time,omitempty"`
}

// brewCask represents a Homebrew cask in JSON output
type brewCask struct {
	Token     string `json:"token"`
	FullToken string `json:"full_token"`
	Tap       string `json:"tap"`
	Version   string `json:"version"`
	Installed string `json:"installed"`
}
