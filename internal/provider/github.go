package provider

import (
	"context"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/ivanlozanoq/PoP-OAuth2/internal/apperror"
	"github.com/ivanlozanoq/PoP-OAuth2/internal/model"
)

const (
	GitHubName = "github"

	githubUserURL   = "https://api.github.com/user"
	githubEmailsURL = "https://api.github.com/user/emails"

	// GitHub tokens typically live for eight hours and the token response
	// usually carries no expires_in.
	GitHubDefaultTokenLifetime = 8 * time.Hour
)

var githubScopes = []string{"read:user", "user:email"}

// githubUser is the part of GET /user we read.
type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
}

// githubEmail is one entry of GET /user/emails.
type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// GitHubGateway runs the GitHub OAuth App flow. GitHub does not issue
// refresh tokens for OAuth Apps, so RefreshToken always fails.
type GitHubGateway struct {
	settings  Settings
	config    *oauth2.Config
	userURL   string
	emailsURL string
}

var _ Gateway = (*GitHubGateway)(nil)

func NewGitHubGateway(s Settings) *GitHubGateway {
	if s.Name == "" {
		s.Name = GitHubName
	}

	endpoint := github.Endpoint
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	g := &GitHubGateway{
		settings:  s,
		config:    s.oauthConfig(endpoint, githubScopes),
		userURL:   githubUserURL,
		emailsURL: githubEmailsURL,
	}
	if s.UserInfoEndpoint != "" {
		g.userURL = s.UserInfoEndpoint
	}
	if s.EmailsEndpoint != "" {
		g.emailsURL = s.EmailsEndpoint
	}
	return g
}

func (g *GitHubGateway) Name() string { return g.settings.Name }

func (g *GitHubGateway) BuildAuthorizationURL(state, codeChallenge string) string {
	return authCodeURL(g.config, state, codeChallenge)
}

func (g *GitHubGateway) ExchangeCodeForToken(ctx context.Context, code model.AuthorizationCode) (*model.Token, error) {
	return exchange(ctx, g.settings, g.config, "github token exchange", code, GitHubDefaultTokenLifetime)
}

// FetchUserInfo reads the profile and then the email list. The display name
// falls back to the login when the profile has no name.
func (g *GitHubGateway) FetchUserInfo(ctx context.Context, accessToken string) (*model.ProviderIdentity, error) {
	var u githubUser
	if err := getJSON(ctx, g.settings, "github user info", g.userURL, accessToken, githubHeaders, &u); err != nil {
		return nil, err
	}
	if u.ID == 0 {
		return nil, apperror.MalformedResponse("github user info", "id")
	}

	name := strings.TrimSpace(u.Name)
	if name == "" {
		name = u.Login
	}

	email, err := g.primaryEmail(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	return &model.ProviderIdentity{
		ProviderID:  strconv.FormatInt(u.ID, 10),
		Provider:    g.Name(),
		DisplayName: name,
		Email:       email,
	}, nil
}

// primaryEmail picks the primary address, else the first one. Any failure of
// the lookup degrades to "" except cancellation, which is returned.
func (g *GitHubGateway) primaryEmail(ctx context.Context, accessToken string) (string, error) {
	var emails []githubEmail
	if err := getJSON(ctx, g.settings, "github user emails", g.emailsURL, accessToken, githubHeaders, &emails); err != nil {
		if apperror.IsContextError(err) {
			return "", err
		}
		return "", nil
	}
	return pickEmail(emails), nil
}

func pickEmail(emails []githubEmail) string {
	for _, e := range emails {
		if e.Primary {
			return e.Email
		}
	}
	if len(emails) > 0 {
		return emails[0].Email
	}
	return ""
}

func (g *GitHubGateway) RefreshToken(ctx context.Context, refreshToken string) (*model.Token, error) {
	return nil, apperror.NotSupported(g.Name(), "token refresh")
}

var githubHeaders = map[string]string{
	"Accept":               "application/vnd.github+json",
	"X-GitHub-Api-Version": "2022-11-28",
	"User-Agent":           "pop-oauth2",
}
