package user

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/tmdent/clinlog/core"
)

var (
	// errors
	ErrNotFound   = errors.New("user not found")
	ErrUserExists = errors.New("a user with this username or email already exists")

	errInvalidValue = "invalid value"
)

type (
	Repository interface {
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []User, exec ...core.DBExecutor) error
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name, User.Username or User.Email.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (User, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		UpdateOrCreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error)
	}

	ServiceInterface interface {
		CheckUniqueness(uname, email string, exclUsers ...User) error
		Create(nu NewUser) (User, error)
		Query(filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		GetByID(id string) (User, error)
		GetByUsernameOrEmail(uname string) (User, error)
		SetLastLogin(usr User) (User, error)
		RequestPasswordReset(email string) error
		ResetPassword(rp ResetUserPassword) error
		Update(id string, uu UpdateUser) (User, error)
		Delete(ids ...string) error
	}

	service struct {
		db      core.DB
		repo    Repository
		mailSvc core.EmailService
		conf    *core.Config
	}
)

var _ ServiceInterface = (*service)(nil) // interface compliance check

func NewService(db core.DB, repo Repository, mailSvc core.EmailService, conf *core.Config) *service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(db, "db"),
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	return &service{
		db:      db,
		repo:    repo,
		mailSvc: mailSvc,
		conf:    conf,
	}
}

func (svc *service) CheckUniqueness(uname, email string, exclUsers ...User) error {
	err := svc.repo.CheckUsernameUniqueness(context.Background(), uname, email, exclUsers)
	if err == nil {
		return nil
	}
	if errors.Cause(err) == ErrUserExists {
		return core.NewValidationError(err,
			core.FieldError{Field: "username", Error: err.Error()},
			core.FieldError{Field: "email", Error: err.Error()},
		)
	}
	return err
}

func (svc *service) Create(nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		Roles:     nu.Roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	usr.SetActive(true)
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}

	usr, err := svc.repo.CreateUser(context.Background(), usr)
	if err != nil {
		return User{}, err
	}
	svc.sendWelcomeEmail(usr)
	return usr, nil
}

func (svc *service) Query(filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	return svc.repo.QueryUsers(context.Background(), filter, ordering)
}

func (svc *service) GetByID(id string) (User, error) {
	return svc.repo.GetUser(context.Background(), GetFilter{ID: id})
}

func (svc *service) GetByUsernameOrEmail(uname string) (User, error) {
	uname = core.CleanString(uname, true /* lower */)
	return svc.repo.GetUser(context.Background(), GetFilter{UsernameOrEmail: []string{uname}})
}

func (svc *service) SetLastLogin(usr User) (User, error) {
	usr.LastLogin = time.Now().UTC()
	return svc.repo.UpdateUser(context.Background(), usr)
}

func (svc *service) RequestPasswordReset(email string) error {
	usr, err := svc.repo.GetUser(context.Background(), GetFilter{Email: email})
	if err != nil {
		return err
	}
	if usr.IsActive != nil && !*usr.IsActive {
		return ErrNotFound
	}

	token, err := MakeToken(usr)
	if err != nil {
		return errors.Wrap(err, "making token")
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      fmt.Sprintf("Password Reset - %s", svc.conf.AppName),
		TemplateName: "password-reset",
		TemplateData: struct {
			User  User
			UID   string
			Token string
		}{usr, EncodeUID(usr), token},
	})
	return nil
}

// ResetPassword runs the User lookup and the password update in one
// transaction so a concurrent login cannot slip between the two.
func (svc *service) ResetPassword(rp ResetUserPassword) error {
	tx, err := svc.db.BeginTx(context.Background(), nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = svc.resetPassword(rp, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func (svc *service) resetPassword(rp ResetUserPassword, exec ...core.DBExecutor) error {
	ctx := context.Background()

	uid, err := decodeUID(rp.UID)
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "uid", Error: errInvalidValue})
	}
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: uid}, exec...)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			// do not leak account existence
			return core.NewValidationError(nil, core.FieldError{Field: "uid", Error: errInvalidValue})
		}
		return err
	}
	if err = verifyToken(usr, rp.Token); err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "token", Error: errInvalidValue})
	}

	if err = usr.SetPassword(rp.Password); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr, exec...)
	return err
}

func (svc *service) Update(id string, uu UpdateUser) (User, error) {
	ctx := context.Background()

	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		return User{}, err
	}

	if uu.Name != "" {
		usr.Name = uu.Name
	}
	if uu.Username != "" {
		usr.Username = uu.Username
	}
	if uu.Email != "" {
		usr.Email = uu.Email
	}
	if uu.IsActive != nil {
		usr.IsActive = uu.IsActive
	}
	if uu.Roles != nil {
		usr.Roles = uu.Roles
	}
	if uu.Password != "" {
		if err = usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "hashing password")
		}
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) Delete(ids ...string) error {
	_, err := svc.repo.DeleteUsersByID(context.Background(), ids)
	return err
}

func (svc *service) sendWelcomeEmail(usr User) {
	if usr.Email == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      fmt.Sprintf("Welcome to %s!", svc.conf.AppName),
		TemplateName: "welcome",
		TemplateData: struct{ User User }{usr},
	})
}
