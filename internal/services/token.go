package services

import (
	"sync"

	"golang.org/x/oauth2"
)

// notifyingTokenSource reports tokens that differ from the last one it handed out.
type notifyingTokenSource struct {
	mu       sync.Mutex
	source   oauth2.TokenSource
	current  *oauth2.Token
	callback func(*oauth2.Token)
}

func newNotifyingTokenSource(source oauth2.TokenSource, initial *oauth2.Token, callback func(*oauth2.Token)) oauth2.TokenSource {
	if callback == nil {
		return source
	}
	return &notifyingTokenSource{source: source, current: initial, callback: callback}
}

// Token implements [oauth2.TokenSource].
func (s *notifyingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.source.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	changed := s.current == nil || s.current.AccessToken != token.AccessToken
	s.current = token
	s.mu.Unlock()

	if changed {
		s.callback(token)
	}
	return token, nil
}
