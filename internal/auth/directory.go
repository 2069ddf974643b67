// ABOUTME: User directory - the fixed set of accounts the gateway knows about
// ABOUTME: Loaded from a TOML file, with a built-in default set for development

package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/BurntSushi/toml"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/knowledge-gateway/internal/chat"
)

// Directory errors
var (
	ErrUnknownUser    = errors.New("unknown user")
	ErrBadCredentials = errors.New("bad credentials")
)

// userEntry is the on-disk shape of one account in the users TOML file.
type userEntry struct {
	ID           string `toml:"id"`
	Username     string `toml:"username"`
	DisplayName  string `toml:"display_name"`
	Email        string `toml:"email"`
	PasswordHash string `toml:"password_hash"` // bcrypt
}

type usersFile struct {
	Users []userEntry `toml:"users"`
}

// account pairs a user with its credential hash.
type account struct {
	user         chat.User
	passwordHash []byte
}

// Directory holds the gateway's user accounts. The set is fixed at startup;
// there is no self-registration.
type Directory struct {
	byID       map[string]*account
	byUsername map[string]*account
	dummyHash  []byte // compared against for unknown usernames
	logger     *slog.Logger
}

// NewDirectory loads accounts from a TOML file. An empty path loads the
// built-in development accounts, all with password "password".
func NewDirectory(path string, logger *slog.Logger) (*Directory, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dummyHash, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("preparing directory: %w", err)
	}

	d := &Directory{
		byID:       make(map[string]*account),
		byUsername: make(map[string]*account),
		dummyHash:  dummyHash,
		logger:     logger.With("component", "directory"),
	}

	if path == "" {
		if err := d.loadDefaults(); err != nil {
			return nil, err
		}
		d.logger.Warn("no users file configured, using built-in development accounts")
		return d, nil
	}

	var file usersFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("loading users file: %w", err)
	}
	if len(file.Users) == 0 {
		return nil, fmt.Errorf("users file %s contains no users", path)
	}

	for _, entry := range file.Users {
		if entry.ID == "" || entry.Username == "" {
			return nil, fmt.Errorf("users file %s: every user needs id and username", path)
		}
		d.add(chat.User{
			ID:          entry.ID,
			Username:    entry.Username,
			DisplayName: entry.DisplayName,
			Email:       entry.Email,
		}, []byte(entry.PasswordHash))
	}

	d.logger.Info("user directory loaded", "path", path, "users", len(file.Users))
	return d, nil
}

func (d *Directory) loadDefaults() error {
	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing default password: %w", err)
	}

	defaults := []chat.User{
		{ID: "jettro", Username: "jettro", DisplayName: "Jettro"},
		{ID: "ian", Username: "ian", DisplayName: "Ian"},
		{ID: "roy", Username: "roy", DisplayName: "Roy"},
		{ID: "marijn", Username: "marijn", DisplayName: "Marijn"},
	}
	for _, u := range defaults {
		d.add(u, hash)
	}
	return nil
}

func (d *Directory) add(user chat.User, passwordHash []byte) {
	acct := &account{user: user, passwordHash: passwordHash}
	d.byID[user.ID] = acct
	d.byUsername[user.Username] = acct
}

// Authenticate checks a username/password pair and returns the user on
// success.
func (d *Directory) Authenticate(username, password string) (chat.User, error) {
	acct, ok := d.byUsername[username]
	if !ok {
		// Burn a comparison anyway so unknown and wrong-password take the
		// same time.
		_ = bcrypt.CompareHashAndPassword(d.dummyHash, []byte(password))
		return chat.User{}, ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(password)); err != nil {
		return chat.User{}, ErrBadCredentials
	}
	return acct.user, nil
}

// Lookup returns the user with the given ID.
func (d *Directory) Lookup(id string) (chat.User, error) {
	acct, ok := d.byID[id]
	if !ok {
		return chat.User{}, ErrUnknownUser
	}
	return acct.user, nil
}

// List returns all users, ordered by username.
func (d *Directory) List() []chat.User {
	users := make([]chat.User, 0, len(d.byID))
	for _, acct := range d.byID {
		users = append(users, acct.user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users
}

// DefaultUser returns the account used when authentication is disabled.
func (d *Directory) DefaultUser() chat.User {
	users := d.List()
	return users[0]
}
