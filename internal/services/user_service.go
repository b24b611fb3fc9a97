package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"

	domain "github.com/cotidiano/api/internal/domain"
	"github.com/cotidiano/api/internal/repositories"
)

const (
	userIDPrefix      = "usr_"
	minPasswordLength = 8
)

var (
	// ErrUserInvalidInput signals the caller provided invalid data.
	ErrUserInvalidInput = errors.New("user: invalid input")
	// ErrUserNotFound indicates the account could not be located.
	ErrUserNotFound = errors.New("user: not found")
	// ErrEmailTaken indicates the email already belongs to another account.
	ErrEmailTaken = errors.New("user: email already registered")
	// ErrInvalidCredentials indicates a failed email/password check.
	ErrInvalidCredentials = errors.New("user: invalid credentials")
	// ErrAccountPending rejects logins while the account awaits staff approval.
	ErrAccountPending = errors.New("user: account pending approval")
	// ErrWrongPassword rejects a password change with a bad current password.
	ErrWrongPassword = errors.New("user: current password does not match")
)

// PasswordHasher abstracts password hashing so tests can avoid bcrypt cost.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash string, password string) error
}

type bcryptHasher struct{}

func (bcryptHasher) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

func (bcryptHasher) Compare(hash string, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// UserServiceDeps bundles collaborators required to construct the user service.
type UserServiceDeps struct {
	Users       repositories.UserRepository
	Hasher      PasswordHasher
	Clock       func() time.Time
	IDGenerator func() string
}

type userService struct {
	users  repositories.UserRepository
	hasher PasswordHasher
	clock  func() time.Time
	newID  func() string
}

// NewUserService wires dependencies into a concrete UserService implementation.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil {
		return nil, errors.New("user service: user repository is required")
	}

	hasher := deps.Hasher
	if hasher == nil {
		hasher = bcryptHasher{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	return &userService{
		users:  deps.Users,
		hasher: hasher,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID: idGen,
	}, nil
}

// Register creates an inactive account that stays pending until staff
// approval.
func (s *userService) Register(ctx context.Context, cmd RegisterCommand) (User, error) {
	name := strings.TrimSpace(cmd.Name)
	email := normalizeEmail(cmd.Email)
	password := strings.TrimSpace(cmd.Password)

	if name == "" || email == "" || password == "" {
		return User{}, fmt.Errorf("%w: name, email, and password are required", ErrUserInvalidInput)
	}
	if err := validatePassword(password); err != nil {
		return User{}, err
	}
	if err := s.ensureEmailAvailable(ctx, email, ""); err != nil {
		return User{}, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return User{}, err
	}

	user := User{
		ID:           userIDPrefix + s.newID(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleCustomer,
		Active:       false,
		CreatedAt:    s.clock(),
	}

	if err := s.users.Insert(ctx, user); err != nil {
		return User{}, s.mapRepositoryError(err)
	}
	return user, nil
}

func (s *userService) Authenticate(ctx context.Context, cmd LoginCommand) (User, error) {
	email := normalizeEmail(cmd.Email)
	password := strings.TrimSpace(cmd.Password)
	if email == "" || password == "" {
		return User{}, fmt.Errorf("%w: email and password are required", ErrUserInvalidInput)
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, s.mapRepositoryError(err)
	}

	// Pending accounts are reported as such even before the password check,
	// so users know why they cannot get in.
	if !user.Active {
		return User{}, fmt.Errorf("%w: %s", ErrAccountPending, email)
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (s *userService) GetByID(ctx context.Context, userID string) (User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return User{}, s.mapRepositoryError(err)
	}
	return user, nil
}

func (s *userService) UpdateProfile(ctx context.Context, cmd UpdateProfileCommand) (User, error) {
	user, err := s.GetByID(ctx, cmd.UserID)
	if err != nil {
		return User{}, err
	}

	if cmd.Email != nil {
		email := normalizeEmail(*cmd.Email)
		if email != "" && email != user.Email {
			if err := s.ensureEmailAvailable(ctx, email, user.ID); err != nil {
				return User{}, err
			}
			user.Email = email
		}
	}
	if cmd.Name != nil {
		if name := strings.TrimSpace(*cmd.Name); name != "" {
			user.Name = name
		}
	}
	if cmd.ShipName != nil {
		if name := strings.TrimSpace(*cmd.ShipName); name != "" {
			user.Name = name
		}
	}
	if cmd.Phone != nil {
		user.Phone = strings.TrimSpace(*cmd.Phone)
	}
	if cmd.Address != nil {
		user.Address = strings.TrimSpace(*cmd.Address)
	}
	if cmd.City != nil {
		user.City = strings.TrimSpace(*cmd.City)
	}
	if cmd.Zip != nil {
		user.PostalCode = strings.TrimSpace(*cmd.Zip)
	}

	if err := s.users.Update(ctx, user); err != nil {
		return User{}, s.mapRepositoryError(err)
	}
	return user, nil
}

func (s *userService) ChangePassword(ctx context.Context, cmd ChangePasswordCommand) error {
	current := strings.TrimSpace(cmd.CurrentPassword)
	next := strings.TrimSpace(cmd.NewPassword)
	if current == "" || next == "" {
		return fmt.Errorf("%w: current and new passwords are required", ErrUserInvalidInput)
	}
	if err := validatePassword(next); err != nil {
		return err
	}

	user, err := s.GetByID(ctx, cmd.UserID)
	if err != nil {
		return err
	}

	if err := s.hasher.Compare(user.PasswordHash, current); err != nil {
		return ErrWrongPassword
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	user.PasswordHash = hash

	if err := s.users.Update(ctx, user); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

func (s *userService) SetAvatar(ctx context.Context, userID string, avatarPath string) (User, error) {
	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return User{}, err
	}

	user.AvatarPath = strings.TrimSpace(avatarPath)
	if err := s.users.Update(ctx, user); err != nil {
		return User{}, s.mapRepositoryError(err)
	}
	return user, nil
}

func (s *userService) AdminList(ctx context.Context, filter UserListFilter) ([]User, error) {
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	filter.Search = ""

	users, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	if search == "" {
		return users, nil
	}

	matched := make([]User, 0, len(users))
	for _, user := range users {
		haystack := strings.ToLower(user.Name + " " + user.Email)
		if strings.Contains(haystack, search) {
			matched = append(matched, user)
		}
	}
	return matched, nil
}

// AdminCreate provisions an account that is active immediately.
func (s *userService) AdminCreate(ctx context.Context, cmd AdminCreateUserCommand) (User, error) {
	name := strings.TrimSpace(cmd.Name)
	email := normalizeEmail(cmd.Email)
	password := strings.TrimSpace(cmd.Password)
	if name == "" || email == "" || password == "" {
		return User{}, fmt.Errorf("%w: name, email, and password are required", ErrUserInvalidInput)
	}
	if err := validatePassword(password); err != nil {
		return User{}, err
	}
	if err := s.ensureEmailAvailable(ctx, email, ""); err != nil {
		return User{}, err
	}

	role := cmd.Role
	if role == "" {
		role = domain.RoleCustomer
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return User{}, err
	}

	user := User{
		ID:           userIDPrefix + s.newID(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
		CreatedAt:    s.clock(),
	}

	if err := s.users.Insert(ctx, user); err != nil {
		return User{}, s.mapRepositoryError(err)
	}
	return user, nil
}

func (s *userService) AdminUpdate(ctx context.Context, cmd AdminUpdateUserCommand) (User, error) {
	user, err := s.GetByID(ctx, cmd.UserID)
	if err != nil {
		return User{}, err
	}

	if cmd.Email != nil {
		email := normalizeEmail(*cmd.Email)
		if email != "" && email != user.Email {
			if err := s.ensureEmailAvailable(ctx, email, user.ID); err != nil {
				return User{}, err
			}
			user.Email = email
		}
	}
	if cmd.Name != nil {
		if name := strings.TrimSpace(*cmd.Name); name != "" {
			user.Name = name
		}
	}
	if cmd.Password != nil {
		if password := strings.TrimSpace(*cmd.Password); password != "" {
			if err := validatePassword(password); err != nil {
				return User{}, err
			}
			hash, err := s.hasher.Hash(password)
			if err != nil {
				return User{}, err
			}
			user.PasswordHash = hash
		}
	}
	if cmd.Role != nil {
		switch *cmd.Role {
		case domain.RoleCustomer, domain.RoleStaff:
			user.Role = *cmd.Role
		default:
			return User{}, fmt.Errorf("%w: unknown role %q", ErrUserInvalidInput, *cmd.Role)
		}
	}

	if err := s.users.Update(ctx, user); err != nil {
		return User{}, s.mapRepositoryError(err)
	}
	return user, nil
}

func (s *userService) SetActive(ctx context.Context, cmd SetUserActiveCommand) (User, error) {
	user, err := s.GetByID(ctx, cmd.UserID)
	if err != nil {
		return User{}, err
	}

	user.Active = cmd.Active
	if err := s.users.Update(ctx, user); err != nil {
		return User{}, s.mapRepositoryError(err)
	}
	return user, nil
}

func (s *userService) ensureEmailAvailable(ctx context.Context, email string, excludeUserID string) error {
	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return s.mapRepositoryError(err)
	}
	if existing.ID == excludeUserID {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrEmailTaken, email)
}

func (s *userService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrUserNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrEmailTaken, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("user: repository unavailable: %w", err)
		}
	}

	return err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: password must have at least %d characters", ErrUserInvalidInput, minPasswordLength)
	}
	return nil
}
