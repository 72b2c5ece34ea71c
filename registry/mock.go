package registry

import (
	"context"

	"github.com/signet-labs/authrepo-signing-backend/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockSignerRegistry mocks the SignerRegistry interface
type MockSignerRegistry struct {
	mock.Mock
}

// IsAuthorizedSigner mocks the IsAuthorizedSigner method
func (m *MockSignerRegistry) IsAuthorizedSigner(ctx context.Context, role interfaces.RoleName, pubKeyPEM []byte) (bool, error) {
	args := m.Called(ctx, role, pubKeyPEM)
	return args.Bool(0), args.Error(1)
}
