package config

import (
	"testing"
)

func TestNewResolver_URLsAndHostname(t *testing.T) {
	tests := []struct {
		name         string
		backend      BackendConfig
		wantBase     string
		wantInternal string
		wantHost     string
	}{
		{
			name:         "internal falls back to public",
			backend:      BackendConfig{PublicURL: "https://api.example.com/"},
			wantBase:     "https://api.example.com",
			wantInternal: "https://api.example.com",
			wantHost:     "api.example.com",
		},
		{
			name:         "hostname derived from internal url",
			backend:      BackendConfig{PublicURL: "https://api.example.com", InternalURL: "https://10.0.0.5:8443/"},
			wantBase:     "https://api.example.com",
			wantInternal: "https://10.0.0.5:8443",
			wantHost:     "10.0.0.5",
		},
		{
			name:         "explicit hostname wins",
			backend:      BackendConfig{PublicURL: "https://api.example.com", InternalURL: "https://10.0.0.5", Hostname: "API.Internal"},
			wantBase:     "https://api.example.com",
			wantInternal: "https://10.0.0.5",
			wantHost:     "api.internal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(&Config{Backend: tt.backend})
			if got := r.BaseURL(); got != tt.wantBase {
				t.Errorf("BaseURL() = %q, want %q", got, tt.wantBase)
			}
			if got := r.InternalURL(); got != tt.wantInternal {
				t.Errorf("InternalURL() = %q, want %q", got, tt.wantInternal)
			}
			if got := r.Hostname(); got != tt.wantHost {
				t.Errorf("Hostname() = %q, want %q", got, tt.wantHost)
			}
		})
	}
}

func TestResolver_HeadersFor(t *testing.T) {
	withKey := NewResolver(&Config{Backend: BackendConfig{PublicURL: "https://api.example.com", FrontendAPIKey: "fk"}})
	noKey := NewResolver(&Config{Backend: BackendConfig{PublicURL: "https://api.example.com"}})

	tests := []struct {
		name      string
		r         *Resolver
		countryID string
		token     string
		want      map[string]string
	}{
		{
			name: "bare",
			r:    noKey,
			want: map[string]string{
				"Accept":           "application/json",
				"X-Requested-With": "XMLHttpRequest",
				"X-Frontend-Key":   "",
				"X-Country-Id":     "",
				"Authorization":    "",
			},
		},
		{
			name:      "everything",
			r:         withKey,
			countryID: "2",
			token:     "tok",
			want: map[string]string{
				"Accept":           "application/json",
				"X-Requested-With": "XMLHttpRequest",
				"X-Frontend-Key":   "fk",
				"X-Country-Id":     "2",
				"Authorization":    "Bearer tok",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := tt.r.HeadersFor(tt.countryID, tt.token)
			for k, want := range tt.want {
				if got := h.Get(k); got != want {
					t.Errorf("header %s = %q, want %q", k, got, want)
				}
			}
		})
	}
}

func TestResolver_HeadersForReturnsFreshMap(t *testing.T) {
	r := NewResolver(&Config{Backend: BackendConfig{PublicURL: "https://api.example.com"}})
	h1 := r.HeadersFor("", "")
	h1.Set("Accept", "*/*")
	if got := r.HeadersFor("", "").Get("Accept"); got != "application/json" {
		t.Errorf("Accept = %q after mutating a previous result", got)
	}
}

func TestResolver_RequestContext(t *testing.T) {
	r := NewResolver(&Config{
		Backend:   BackendConfig{PublicURL: "https://api.example.com", FrontendAPIKey: "fk"},
		Countries: map[string]string{"JO": "1", "sa": "2"},
	})

	rc := r.RequestContext(" SA ", "", "tok")
	if rc.CountryCode != "sa" || rc.CountryID != "2" || rc.AuthToken != "tok" || rc.FrontendAPIKey != "fk" {
		t.Errorf("RequestContext() = %+v", rc)
	}

	rc = r.RequestContext("jo", "7", "")
	if rc.CountryID != "7" {
		t.Errorf("explicit country id: CountryID = %q, want %q", rc.CountryID, "7")
	}

	rc = r.RequestContext("zz", "", "")
	if rc.CountryID != "" {
		t.Errorf("unknown country: CountryID = %q, want empty", rc.CountryID)
	}
}

func TestResolver_IsProduction(t *testing.T) {
	prod := NewResolver(&Config{Site: SiteConfig{Environment: "Production"}})
	if !prod.IsProduction() {
		t.Error("IsProduction() = false, want true")
	}
	dev := NewResolver(&Config{Site: SiteConfig{Environment: "development"}})
	if dev.IsProduction() {
		t.Error("IsProduction() = true, want false")
	}
}
