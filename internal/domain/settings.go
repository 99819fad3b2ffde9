package domain

// Settings modifiables à chaud (persistés en SQLite).
type Settings struct {
	// Compte du catalogue authentifié. Le mot de passe est stocké en clair.
	CatalogUsername string `json:"catalogUsername"`
	CatalogPassword string `json:"catalogPassword,omitempty"`

	// Plafond de requêtes simultanées vers les catalogues.
	MaxConcurrentRequests int `json:"maxConcurrentRequests"`

	// Parallélisme des recherches groupées.
	MaxBatchWorkers int `json:"maxBatchWorkers"`

	// Masque les sous-titres non terminés (ex: "45% Completed").
	HideIncomplete bool `json:"hideIncomplete"`
}

func DefaultSettings() Settings {
	return Settings{
		MaxConcurrentRequests: 4,
		MaxBatchWorkers:       4,
	}
}

// Redacted masque le mot de passe pour l'affichage.
func (s Settings) Redacted() Settings {
	if s.CatalogPassword != "" {
		s.CatalogPassword = "********"
	}
	return s
}

// Credentials du compte catalogue.
type Credentials struct {
	Username string
	Password string
}

func (c Credentials) Empty() bool { return c.Username == "" || c.Password == "" }

func (s Settings) Credentials() Credentials {
	return Credentials{Username: s.CatalogUsername, Password: s.CatalogPassword}
}
