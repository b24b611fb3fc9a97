package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/cotidiano/api/internal/domain"
	pfirestore "github.com/cotidiano/api/internal/platform/firestore"
	"github.com/cotidiano/api/internal/repositories"
)

const userCollection = "users"

type userDocument struct {
	Name         string    `firestore:"name"`
	Email        string    `firestore:"email"`
	PasswordHash string    `firestore:"passwordHash"`
	Role         string    `firestore:"role"`
	Phone        string    `firestore:"phone,omitempty"`
	Address      string    `firestore:"address,omitempty"`
	City         string    `firestore:"city,omitempty"`
	PostalCode   string    `firestore:"postalCode,omitempty"`
	AvatarPath   string    `firestore:"avatarPath,omitempty"`
	Active       bool      `firestore:"active"`
	CreatedAt    time.Time `firestore:"createdAt"`
}

// UserRepository implements repositories.UserRepository backed by Firestore.
type UserRepository struct {
	base *pfirestore.BaseRepository[userDocument]
}

var _ repositories.UserRepository = (*UserRepository)(nil)

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[userDocument](provider, userCollection, nil, nil)
	return &UserRepository{base: base}, nil
}

// Insert creates the account after checking the email is unused. The check and
// the write are not atomic outside a transaction; a racing duplicate surfaces
// later as a conflict when the loser tries to log in with an ambiguous email.
func (r *UserRepository) Insert(ctx context.Context, user domain.User) error {
	if err := requireID(user.ID, "user id"); err != nil {
		return err
	}
	if err := r.ensureEmailFree(ctx, user.Email, user.ID, "users.insert"); err != nil {
		return err
	}
	_, err := r.base.Create(ctx, user.ID, fromDomainUser(user))
	return err
}

func (r *UserRepository) Update(ctx context.Context, user domain.User) error {
	if err := requireID(user.ID, "user id"); err != nil {
		return err
	}
	if err := r.ensureEmailFree(ctx, user.Email, user.ID, "users.update"); err != nil {
		return err
	}
	_, err := r.base.Set(ctx, user.ID, fromDomainUser(user))
	return err
}

func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	if err := requireID(userID, "user id"); err != nil {
		return domain.User{}, err
	}
	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	return toDomainUser(doc), nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.findByEmail(ctx, email)
}

func (r *UserRepository) List(ctx context.Context, filter repositories.UserListFilter) ([]domain.User, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.PendingOnly {
			q = q.Where("active", "==", false)
		}
		if filter.Limit > 0 && filter.Search == "" {
			q = q.Limit(filter.Limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}

	users := make([]domain.User, 0, len(docs))
	for _, doc := range docs {
		users = append(users, toDomainUser(doc))
	}
	return users, nil
}

func (r *UserRepository) ensureEmailFree(ctx context.Context, email, selfID, op string) error {
	existing, err := r.findByEmail(ctx, email)
	if err != nil {
		if isRepoNotFound(err) {
			return nil
		}
		return err
	}
	if existing.ID != selfID {
		return pfirestore.WrapError(op, status.Errorf(codes.AlreadyExists, "email %s already registered", existing.Email))
	}
	return nil
}

func (r *UserRepository) findByEmail(ctx context.Context, email string) (domain.User, error) {
	normalised := strings.ToLower(strings.TrimSpace(email))
	if normalised == "" {
		return domain.User{}, pfirestore.WrapError("users.findbyemail", status.Error(codes.NotFound, "email is empty"))
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("email", "==", normalised).Limit(1)
	})
	if err != nil {
		return domain.User{}, err
	}
	if len(docs) == 0 {
		return domain.User{}, pfirestore.WrapError("users.findbyemail", status.Errorf(codes.NotFound, "account %s not found", normalised))
	}
	return toDomainUser(docs[0]), nil
}

func fromDomainUser(user domain.User) userDocument {
	return userDocument{
		Name:         strings.TrimSpace(user.Name),
		Email:        strings.ToLower(strings.TrimSpace(user.Email)),
		PasswordHash: user.PasswordHash,
		Role:         string(user.Role),
		Phone:        strings.TrimSpace(user.Phone),
		Address:      strings.TrimSpace(user.Address),
		City:         strings.TrimSpace(user.City),
		PostalCode:   strings.TrimSpace(user.PostalCode),
		AvatarPath:   strings.TrimSpace(user.AvatarPath),
		Active:       user.Active,
		CreatedAt:    user.CreatedAt.UTC(),
	}
}

func toDomainUser(doc pfirestore.Document[userDocument]) domain.User {
	user := domain.User{
		ID:           doc.ID,
		Name:         doc.Data.Name,
		Email:        doc.Data.Email,
		PasswordHash: doc.Data.PasswordHash,
		Role:         domain.UserRole(doc.Data.Role),
		Phone:        doc.Data.Phone,
		Address:      doc.Data.Address,
		City:         doc.Data.City,
		PostalCode:   doc.Data.PostalCode,
		AvatarPath:   doc.Data.AvatarPath,
		Active:       doc.Data.Active,
		CreatedAt:    doc.Data.CreatedAt,
	}
	if user.Role == "" {
		user.Role = domain.RoleCustomer
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = doc.CreateTime
	}
	return user
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
