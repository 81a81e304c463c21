package auth

import (
	"context"

	"verida.org/internal/contract"
)

// CallerAuthorizer accepts a principal claim only when it names the
// authenticated caller of the request.
type CallerAuthorizer struct{}

var _ contract.Authorizer = CallerAuthorizer{}

func (CallerAuthorizer) RequireAuth(ctx context.Context, p contract.Principal) error {
	caller, ok := UserIDFromContext(ctx)
	if !ok {
		return contract.Validation(contract.CodeUnauthorized, "caller is not authenticated")
	}
	if contract.Principal(caller) != p {
		return contract.Validationf(contract.CodeUnauthorized, "caller %s cannot act as %s", caller, p)
	}
	return nil
}
