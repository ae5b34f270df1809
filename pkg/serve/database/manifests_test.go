// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLikeEscape(t *testing.T) {
	// table keys may contain LIKE metacharacters; the prefix match must treat
	// them literally
	assert.Equal(t, "plain", likeEscape("plain"))
	assert.Equal(t, `a\_b`, likeEscape("a_b"))
	assert.Equal(t, `100\%`, likeEscape("100%"))
	assert.Equal(t, `a\\\_\%`, likeEscape(`a\_%`))
}
