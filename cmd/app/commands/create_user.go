package commands

import (
	"context"
	"fmt"
	"io"

	userUsecase "github.com/allisson/gridgate/internal/user/usecase"
)

// RunCreateUser creates a pre-registered local account and writes a summary
// to writer.
func RunCreateUser(
	ctx context.Context,
	useCase userUsecase.UseCase,
	writer io.Writer,
	input userUsecase.CreateAccountInput,
) error {
	profile, err := useCase.CreateLocalAccount(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	fmt.Fprintf(writer, "Account created\n")
	fmt.Fprintf(writer, "ID:    %s\n", profile.ID)
	fmt.Fprintf(writer, "Name:  %s\n", profile.Name())
	fmt.Fprintf(writer, "Email: %s\n", profile.Email)
	return nil
}
