// Copyright 2025 Globo.com
// Licensed under the AGPLv3, see LICENCE file for details.

package broker

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"

	"github.com/juju/errors"
)

const (
	// passwordAlphabet is the character set instance passwords are
	// drawn from, each character chosen independently and uniformly.
	passwordAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ!@#$%^&*"

	passwordLength = 8

	// containerNameBytes random bytes render as twice as many
	// lowercase hex characters. Collisions are not checked.
	containerNameBytes = 3
)

func generatePassword() (string, error) {
	max := big.NewInt(int64(len(passwordAlphabet)))
	password := make([]byte, passwordLength)
	for i := range password {
		index, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", errors.Annotate(err, "generating password")
		}
		password[i] = passwordAlphabet[index.Int64()]
	}
	return string(password), nil
}

func generateContainerName() (string, error) {
	raw := make([]byte, containerNameBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", errors.Annotate(err, "generating container name")
	}
	return hex.EncodeToString(raw), nil
}
