package sorted

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_By(t *testing.T) {
	assert := assert.New(t)

	expect := []string{
		"9780131103627-1-create",
		"9780262033848-2-get",
		"9780201633610-7",
		"9780134190440-16-delete",
	}

	input := []string{
		"9780262033848-2-get",
		"9780131103627-1-create",
		"9780134190440-16-delete",
		"9780201633610-7",
	}

	actual := By(input, func(left, right string) bool {
		leftParts := strings.Split(left, "-")
		rightParts := strings.Split(right, "-")

		if len(leftParts) < 2 || len(rightParts) < 2 {
			return true
		}

		leftNum, err := strconv.Atoi(leftParts[1])
		if err != nil {
			return true
		}

		rightNum, err := strconv.Atoi(rightParts[1])
		if err != nil {
			return true
		}

		return leftNum < rightNum
	})

	assert.Equal(expect, actual)
	assert.Equal("9780262033848-2-get", input[0], "input was modified")
}

func Test_Keys(t *testing.T) {
	testCases := []struct {
		name   string
		input  map[string]int
		expect []string
	}{
		{
			name:   "nil map",
			input:  nil,
			expect: []string{},
		},
		{
			name:   "several keys",
			input:  map[string]int{"throttle": 3, "log": 1, "metrics": 2},
			expect: []string{"log", "metrics", "throttle"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)

			actual := Keys(tc.input)

			assert.Equal(tc.expect, actual)
		})
	}
}
