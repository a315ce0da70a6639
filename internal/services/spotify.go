package services

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/nknaian/musicorg/internal/shared"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

// Scopes requested from the user during authorization.
var Scopes = []string{
	spotifyauth.ScopeUserReadPrivate,
	spotifyauth.ScopePlaylistReadPrivate,
	spotifyauth.ScopePlaylistReadCollaborative,
	spotifyauth.ScopePlaylistModifyPublic,
	spotifyauth.ScopePlaylistModifyPrivate,
	spotifyauth.ScopeUserReadPlaybackState,
	spotifyauth.ScopeUserModifyPlaybackState,
}

// SpotifyService implements [Provider] for the Spotify Web API.
type SpotifyService struct {
	config     *oauth2.Config
	public     *clientcredentials.Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
	apiURL     string
	seed       *uint64

	publicOnce   sync.Once
	publicClient *spotifyClient
}

// Option customizes a [SpotifyService].
type Option func(*SpotifyService)

// WithEndpoints points the service at alternative API and accounts hosts.
// apiURL must end with a slash, e.g. "http://127.0.0.1:8080/v1/".
func WithEndpoints(apiURL, authURL, tokenURL string) Option {
	return func(s *SpotifyService) {
		s.apiURL = apiURL
		s.config.Endpoint = oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL}
		s.public.TokenURL = tokenURL
	}
}

// WithHTTPClient replaces the retrying transport.
func WithHTTPClient(c *http.Client) Option {
	return func(s *SpotifyService) { s.httpClient = c }
}

// WithShuffleSeed makes album shuffles deterministic. Each client gets its own source seeded
// with seed.
func WithShuffleSeed(seed uint64) Option {
	return func(s *SpotifyService) { s.seed = &seed }
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
func NewSpotifyService(creds shared.SpotifyConfig, remote shared.RemoteConfig, logger *log.Logger, opts ...Option) (*SpotifyService, error) {
	if creds.ClientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}
	if creds.ClientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}
	if creds.RedirectURI == "" {
		return nil, fmt.Errorf("%w: missing redirect_uri", shared.ErrMissingCredentials)
	}

	limit := rate.Inf
	if remote.RateLimit > 0 {
		limit = rate.Limit(remote.RateLimit)
	}

	s := &SpotifyService{
		config: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.RedirectURI,
			Scopes:       Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  spotifyauth.AuthURL,
				TokenURL: spotifyauth.TokenURL,
			},
		},
		public: &clientcredentials.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     spotifyauth.TokenURL,
		},
		httpClient: newHTTPClient(remote, logger),
		limiter:    rate.NewLimiter(limit, 5),
		logger:     shared.WithLogger(logger, "service", "spotify"),
	}

	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Name returns the display name of the remote service.
func (s *SpotifyService) Name() string {
	return "Spotify"
}

// AuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) AuthURL(state string) string {
	return s.config.AuthCodeURL(state)
}

// Exchange trades an authorization code for a token.
func (s *SpotifyService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := s.config.Exchange(s.withHTTPClient(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to exchange auth code: %w", shared.ErrAuthFailed, err)
	}
	return token, nil
}

// Public returns a client limited to public playlists, authorized with the app's own credentials.
func (s *SpotifyService) Public() CollectionReader {
	s.publicOnce.Do(func() {
		httpClient := s.public.Client(s.withHTTPClient(context.Background()))
		httpClient.Timeout = s.httpClient.Timeout
		s.publicClient = s.newClient(httpClient, nil)
	})
	return s.publicClient
}

// UserClient returns a client acting on behalf of the owner of token.
//
// A token that is missing, or expired without a refresh token, yields an [AuthRequiredError].
func (s *SpotifyService) UserClient(ctx context.Context, token *oauth2.Token, opts UserClientOpts) (UserClient, error) {
	authURL := opts.AuthURL
	if authURL == nil {
		authURL = func() string { return s.AuthURL("") }
	}

	if token == nil || (!token.Valid() && token.RefreshToken == "") {
		return nil, &AuthRequiredError{URL: authURL(), Err: shared.ErrNotAuthenticated}
	}

	ctx = s.withHTTPClient(ctx)
	source := newNotifyingTokenSource(s.config.TokenSource(ctx, token), token, opts.OnRefresh)
	httpClient := oauth2.NewClient(ctx, source)
	httpClient.Timeout = s.httpClient.Timeout

	return s.newClient(httpClient, authURL), nil
}

func (s *SpotifyService) newClient(httpClient *http.Client, authURL func() string) *spotifyClient {
	var opts []spotify.ClientOption
	if s.apiURL != "" {
		opts = append(opts, spotify.WithBaseURL(s.apiURL))
	}

	// The public client is shared across requests and never plays, so it gets no source.
	var rng *rand.Rand
	if s.seed != nil && authURL != nil {
		rng = rand.New(rand.NewPCG(*s.seed, *s.seed))
	}

	return &spotifyClient{
		api:     spotify.New(httpClient, opts...),
		limiter: s.limiter,
		logger:  s.logger,
		authURL: authURL,
		rng:     rng,
	}
}

// withHTTPClient makes oauth2 use the retrying transport for token requests.
func (s *SpotifyService) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}
