package ui

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressBar(t *testing.T) {
	SetTheme("mono")
	defer SetTheme("classic")

	assert.Equal(t, "#####-----  50%", ProgressBar(1, 2, 10))
	assert.Equal(t, "----------   0%", ProgressBar(0, 0, 10))
	assert.Equal(t, "##### 100%", ProgressBar(3, 3, 2))
}

func TestChart(t *testing.T) {
	SetTheme("mono")
	defer SetTheme("classic")

	assert.Equal(t, "Pending   ## 1\nCompleted #### 2", Chart(1, 2, 4))
	assert.Equal(t, "Pending    0\nCompleted  0", Chart(0, 0, 4))
}

func TestLineHelpers(t *testing.T) {
	SetTheme("mono")
	defer SetTheme("classic")
	var out, errOut bytes.Buffer
	Stdout, Stderr = &out, &errOut
	defer func() { Stdout, Stderr = os.Stdout, os.Stderr }()

	OK("saved")
	Fail("boom")
	assert.Equal(t, "✔ saved\n", out.String())
	assert.Equal(t, "✖ boom\n", errOut.String())
	assert.Equal(t, "  email: Invalid email format\n  password: Password is required",
		Fields(map[string]string{"password": "Password is required", "email": "Invalid email format"}))
}
