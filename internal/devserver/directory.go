package devserver

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/concord-chat/livechat/internal/models"
	"github.com/concord-chat/livechat/pkg/crypto"
)

var (
	ErrUserExists    = errors.New("user already exists")
	ErrChannelExists = errors.New("channel already exists")
	ErrUnknownUser   = errors.New("user not found")
)

type account struct {
	user         models.User
	passwordHash string
}

// Directory is the dev server's in-memory user and channel registry
type Directory struct {
	accounts map[models.ID]*account
	byEmail  map[string]models.ID
	channels []models.Channel
	members  []models.UserChannelInfo
	nextID   int

	mu sync.RWMutex
}

// NewDirectory creates a directory holding the default channels
func NewDirectory() *Directory {
	d := &Directory{
		accounts: make(map[models.ID]*account),
		byEmail:  make(map[string]models.ID),
	}
	for _, name := range models.DefaultChannels() {
		d.channels = append(d.channels, *models.NewChannel(name))
	}
	return d
}

// AddUser hashes the password and stores a new user. Ids are small
// integers, as the real backend issues them.
func (d *Directory) AddUser(req models.AddUserRequest) (*models.User, error) {
	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.byEmail[email]; ok {
		return nil, fmt.Errorf("%w: %s", ErrUserExists, email)
	}

	d.nextID++
	user := models.User{
		ID:        models.ID(fmt.Sprint(d.nextID)),
		Email:     email,
		Username:  req.Username,
		Role:      req.Role,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Status:    "active",
	}
	d.accounts[user.ID] = &account{user: user, passwordHash: hash}
	d.byEmail[email] = user.ID

	// Everyone joins the default channels
	for _, ch := range d.channels {
		d.members = append(d.members, models.UserChannelInfo{
			UserID:      user.ID,
			Email:       user.Email,
			ChannelID:   ch.ID,
			ChannelName: ch.Name,
			JoinedAt:    time.Now().UTC(),
		})
	}

	return &user, nil
}

// Authenticate returns the user whose email and password match
func (d *Directory) Authenticate(email, password string) (*models.User, bool) {
	d.mu.RLock()
	id, ok := d.byEmail[strings.ToLower(strings.TrimSpace(email))]
	var acct *account
	if ok {
		acct = d.accounts[id]
	}
	d.mu.RUnlock()

	if acct == nil || !crypto.CheckPassword(password, acct.passwordHash) {
		return nil, false
	}
	user := acct.user
	return &user, true
}

// User returns one user by id
func (d *Directory) User(id string) (*models.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	acct, ok := d.accounts[models.ID(id)]
	if !ok {
		return nil, ErrUnknownUser
	}
	user := acct.user
	return &user, nil
}

// Users returns every user ordered by id
func (d *Directory) Users() []models.User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	users := make([]models.User, 0, len(d.accounts))
	for _, acct := range d.accounts {
		users = append(users, acct.user)
	}
	sort.Slice(users, func(i, j int) bool {
		if len(users[i].ID) != len(users[j].ID) {
			return len(users[i].ID) < len(users[j].ID)
		}
		return users[i].ID < users[j].ID
	})
	return users
}

// AddChannel creates a channel with a unique name
func (d *Directory) AddChannel(req models.AddChannelRequest) (*models.Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ch := range d.channels {
		if strings.EqualFold(ch.Name, req.Name) {
			return nil, fmt.Errorf("%w: %s", ErrChannelExists, req.Name)
		}
	}
	ch := models.NewChannel(req.Name)
	if req.Status != "" {
		ch.Status = req.Status
	}
	d.channels = append(d.channels, *ch)
	return ch, nil
}

// Channels returns every channel in creation order
func (d *Directory) Channels() []models.Channel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]models.Channel(nil), d.channels...)
}

// Members returns the user/channel membership table
func (d *Directory) Members() []models.UserChannelInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]models.UserChannelInfo(nil), d.members...)
}
