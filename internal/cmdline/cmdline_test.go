package cmdline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSingle(t *testing.T) {
	cmd, err := Parse(`echo "hello world" > out.txt`)
	require.NoError(t, err)
	require.NotNil(t, cmd)

	assert.Equal(t, []string{"echo", "hello world"}, cmd.Args)
	assert.Equal(t, "out.txt", cmd.OutputRedirect)
	assert.Empty(t, cmd.InputRedirect)
	assert.True(t, cmd.Blocking)
	assert.Nil(t, cmd.Next)
	assert.Equal(t, 1, cmd.Stages())
	assert.Equal(t, "echo", cmd.Name())
}

func TestParsePipeline(t *testing.T) {
	cmd, err := Parse("cat < in.txt | wc -l > count.txt")
	require.NoError(t, err)
	require.Equal(t, 2, cmd.Stages())

	assert.Equal(t, []string{"cat"}, cmd.Args)
	assert.Equal(t, "in.txt", cmd.InputRedirect)
	assert.Equal(t, []string{"wc", "-l"}, cmd.Next.Args)
	assert.Equal(t, "count.txt", cmd.Next.OutputRedirect)
}

func TestParseBackground(t *testing.T) {
	for _, line := range []string{"sleep 10 &", "sleep 10&"} {
		cmd, err := Parse(line)
		require.NoError(t, err, line)
		assert.Equal(t, []string{"sleep", "10"}, cmd.Args, line)
		assert.False(t, cmd.Blocking, line)
	}

	cmd, err := Parse("yes | head -n 1 &")
	require.NoError(t, err)
	assert.False(t, cmd.Blocking)
	assert.False(t, cmd.Next.Blocking)
}

func TestParseEmpty(t *testing.T) {
	cmd, err := Parse("   ")
	require.NoError(t, err)
	assert.Nil(t, cmd)
}

func TestParseErrors(t *testing.T) {
	for _, line := range []string{
		"ls |",
		"| wc",
		"cat <",
		"cat > | wc",
		`echo "unterminated`,
		"&",
	} {
		_, err := Parse(line)
		assert.ErrorIs(t, err, ErrSyntax, line)
	}
}

func TestCommandString(t *testing.T) {
	cmd, err := Parse("ls -l /tmp")
	require.NoError(t, err)
	assert.Equal(t, "ls -l /tmp", cmd.String())
}

func TestParseQuotedOperatorsAreLiteral(t *testing.T) {
	cmd, err := Parse(`grep "|" f`)
	require.NoError(t, err)
	assert.Equal(t, 1, cmd.Stages())
	assert.Equal(t, []string{"grep", "|", "f"}, cmd.Args)

	cmd, err = Parse(`echo '>' "<" \|`)
	require.NoError(t, err)
	assert.Equal(t, []string{"echo", ">", "<", "|"}, cmd.Args)
	assert.Empty(t, cmd.InputRedirect)
	assert.Empty(t, cmd.OutputRedirect)

	for _, line := range []string{`echo "x&"`, `echo 'x &'`, `echo x\&`, `echo "&"`} {
		cmd, err := Parse(line)
		require.NoError(t, err, line)
		assert.True(t, cmd.Blocking, line)
		assert.Len(t, cmd.Args, 2, line)
	}
}

func TestParseQuotedWordWithTrailingAmpersand(t *testing.T) {
	cmd, err := Parse(`echo "a b"&`)
	require.NoError(t, err)
	assert.False(t, cmd.Blocking)
	assert.Equal(t, []string{"echo", "a b"}, cmd.Args)

	cmd, err = Parse(`cat > "out file" &`)
	require.NoError(t, err)
	assert.False(t, cmd.Blocking)
	assert.Equal(t, "out file", cmd.OutputRedirect)
}
