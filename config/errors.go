/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import "fmt"

// WrapKeyErr prefixes err with the key it relates to ("gateway.maxConcurrency: ...").
func WrapKeyErr(key string, err error) error {
	return fmt.Errorf("%s: %w", key, err)
}

// WrapKeyErrIfNeeded is WrapKeyErr that keeps nil as is.
func WrapKeyErrIfNeeded(key string, err error) error {
	if err == nil {
		return nil
	}
	return WrapKeyErr(key, err)
}
