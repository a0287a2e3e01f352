package googlecalendar

import (
	"context"
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// ErrNotAuthorized means no OAuth token has been stored yet.
var ErrNotAuthorized = errors.New("google calendar access has not been authorized")

// Authorizer holds the OAuth client of the single Google account feeds are
// mirrored into. The token lives in a JSON file.
type Authorizer struct {
	config    *oauth2.Config
	tokenFile string
	log       logrus.FieldLogger
}

func NewAuthorizer(clientID, clientSecret, redirectURI, tokenFile string, log logrus.FieldLogger) *Authorizer {
	return &Authorizer{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       []string{calendar.CalendarScope},
			Endpoint:     google.Endpoint,
		},
		tokenFile: tokenFile,
		log:       log,
	}
}

// AuthURL is the consent page to send the account owner to.
func (a *Authorizer) AuthURL(state string) string {
	return a.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeAndSave trades an authorization code for a token and stores it.
func (a *Authorizer) ExchangeAndSave(ctx context.Context, code string) error {
	tok, err := a.config.Exchange(ctx, code)
	if err != nil {
		return errors.Wrap(err, "unable to retrieve token from web")
	}
	return a.saveToken(tok)
}

// Authorized reports whether a token file exists.
func (a *Authorizer) Authorized() bool {
	_, err := a.tokenFromFile()
	return err == nil
}

// Service returns a Calendar client using the stored token.
func (a *Authorizer) Service(ctx context.Context) (*calendar.Service, error) {
	tok, err := a.tokenFromFile()
	if err != nil {
		return nil, errors.Wrap(ErrNotAuthorized, err.Error())
	}
	srv, err := calendar.NewService(ctx, option.WithHTTPClient(a.config.Client(ctx, tok)))
	if err != nil {
		return nil, errors.Wrap(err, "unable to retrieve Calendar client")
	}
	a.log.Debug("Google Calendar client retrieved successfully")
	return srv, nil
}

func (a *Authorizer) tokenFromFile() (*oauth2.Token, error) {
	f, err := os.Open(a.tokenFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, errors.Wrapf(err, "error reading token file %s", a.tokenFile)
	}
	return tok, nil
}

func (a *Authorizer) saveToken(token *oauth2.Token) error {
	a.log.Infof("Saving credential file to: %s", a.tokenFile)
	f, err := os.OpenFile(a.tokenFile, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return errors.Wrap(err, "unable to cache oauth token")
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}
