package user

import (
	"github.com/tmdent/clinlog/core"
)

// serviceMock bypasses the DB transaction in ResetPassword so the service
// can run against in-memory repositories in tests.
type serviceMock struct {
	service
}

var _ ServiceInterface = (*serviceMock)(nil) // interface compliance check

func NewServiceMock(repo Repository, mailSvc core.EmailService) *serviceMock {
	return &serviceMock{
		service: service{
			repo:    repo,
			mailSvc: mailSvc,
			conf:    core.Conf,
		},
	}
}

func (svc *serviceMock) ResetPassword(rp ResetUserPassword) error {
	return svc.resetPassword(rp)
}
