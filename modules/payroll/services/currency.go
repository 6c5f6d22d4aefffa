package services

import (
	"fmt"

	gomoney "github.com/Rhymond/go-money"
)

func validateCurrency(code string) error {
	if len(code) != 3 || gomoney.GetCurrency(code) == nil {
		return invalidArgument(fmt.Sprintf("unsupported currency %q", code))
	}
	return nil
}
