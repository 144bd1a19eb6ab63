package fakeuserrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/guelfi/BarbeariaSaaS/users"
)

var _ users.CredentialStore = (*FakeUserRepo)(nil)

// FakeUserRepo is an in-memory CredentialStore. Reads take the read lock,
// writes are append-mostly.
type FakeUserRepo struct {
	users    map[string]*users.User
	emailIds map[string]string // normalised email to user id
	lock     sync.RWMutex
	cost     int
	nowFunc  func() time.Time
}

type Option func(*FakeUserRepo)

// WithBcryptCost sets the cost used when hashing passwords in Create
func WithBcryptCost(cost int) Option {
	return func(ur *FakeUserRepo) {
		ur.cost = cost
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(ur *FakeUserRepo) {
		ur.nowFunc = now
	}
}

func NewFakeUserRepo(options ...Option) *FakeUserRepo {
	ur := &FakeUserRepo{
		users:    make(map[string]*users.User),
		emailIds: make(map[string]string),
		nowFunc:  time.Now,
	}
	for _, opt := range options {
		opt(ur)
	}
	return ur
}

func (ur *FakeUserRepo) FindByEmail(_ context.Context, email string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	user, ok := ur.byEmail(email)
	if !ok || !user.Active {
		return nil, users.ErrUserNotFound
	}
	return user.Clone(), nil
}

func (ur *FakeUserRepo) Validate(_ context.Context, email, password string) (*users.User, error) {
	ur.lock.RLock()
	user, ok := ur.byEmail(email)
	if ok {
		user = user.Clone()
	}
	ur.lock.RUnlock()

	if !ok {
		users.CompareUnknownPrincipal(password, ur.cost)
		return nil, users.ErrInvalidCredentials
	}
	if !users.CheckPasswordHash(password, user.PasswordHash) {
		return nil, users.ErrInvalidCredentials
	}
	if !user.Active {
		return nil, users.ErrUserInactive
	}
	return user, nil
}

func (ur *FakeUserRepo) Create(_ context.Context, user *users.User, password string) (*users.User, error) {
	prepared, err := users.PrepareNew(user, password, ur.cost, ur.nowFunc())
	if err != nil {
		return nil, err
	}
	if err := ur.insert(prepared); err != nil {
		return nil, err
	}
	return prepared.Clone(), nil
}

func (ur *FakeUserRepo) Import(_ context.Context, user *users.User) error {
	prepared, err := users.PrepareImport(user, ur.nowFunc())
	if err != nil {
		return err
	}
	return ur.insert(prepared)
}

func (ur *FakeUserRepo) insert(user *users.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if _, ok := ur.emailIds[user.Email]; ok {
		return users.ErrDuplicateEmail
	}
	if _, ok := ur.users[user.ID]; ok {
		return users.ErrDuplicateEmail
	}
	ur.users[user.ID] = user
	ur.emailIds[user.Email] = user.ID
	return nil
}

func (ur *FakeUserRepo) GetByID(_ context.Context, id string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	user, ok := ur.users[id]
	if !ok {
		return nil, users.ErrUserNotFound
	}
	return user.Clone(), nil
}

func (ur *FakeUserRepo) Delete(_ context.Context, email string) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	email = users.NormalizeEmail(email)
	userID, ok := ur.emailIds[email]
	if !ok {
		return users.ErrUserNotFound
	}
	delete(ur.emailIds, email)
	delete(ur.users, userID)
	return nil
}

func (ur *FakeUserRepo) SetActive(_ context.Context, email string, active bool) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	user, ok := ur.byEmail(email)
	if !ok {
		return users.ErrUserNotFound
	}
	user.Active = active
	return nil
}

func (ur *FakeUserRepo) List(_ context.Context, tenantID string, offset, limit int) ([]*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	userList := make([]*users.User, 0, len(ur.users))
	for _, v := range ur.users {
		if tenantID != "" && v.TenantID != tenantID {
			continue
		}
		userList = append(userList, v.Clone())
	}

	sort.Slice(userList, func(i, j int) bool {
		return userList[i].Email < userList[j].Email
	})

	if offset >= len(userList) {
		return []*users.User{}, nil
	}
	end := len(userList)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return userList[offset:end], nil
}

// byEmail must be called with the lock held
func (ur *FakeUserRepo) byEmail(email string) (*users.User, bool) {
	id, ok := ur.emailIds[users.NormalizeEmail(email)]
	if !ok {
		return nil, false
	}
	user, ok := ur.users[id]
	return user, ok
}
