package logger_test

import (
	"bytes"
	"os"
	"testing"
	"time"

	. "gopkg.in/check.v1"

	"github.com/radhelper/radiation-setup/internal/logger"
)

func timeForTest() time.Time {
	return time.Date(2024, 3, 5, 6, 7, 8, 9_000_000, time.UTC)
}

func Test(t *testing.T) { TestingT(t) }

var _ = Suite(&LogSuite{})

type LogSuite struct {
	logbuf        interface{ String() string }
	restoreLogger func()
}

func (s *LogSuite) SetUpTest(c *C) {
	s.logbuf, s.restoreLogger = logger.MockLogger("PREFIX: ")
}

func (s *LogSuite) TearDownTest(c *C) {
	s.restoreLogger()
}

func (s *LogSuite) TestNew(c *C) {
	var buf bytes.Buffer
	l := logger.New(&buf, "")
	c.Assert(l, NotNil)
}

func (s *LogSuite) TestNoticef(c *C) {
	logger.Noticef("xyzzy")
	c.Check(s.logbuf.String(), Matches, `(?s).*PREFIX: xyzzy\n`)
}

func (s *LogSuite) TestDebugfDisabled(c *C) {
	os.Unsetenv("RADIATION_SETUP_DEBUG")
	logger.Debugf("xyzzy")
	c.Check(s.logbuf.String(), Equals, "")
}

func (s *LogSuite) TestDebugfEnabled(c *C) {
	os.Setenv("RADIATION_SETUP_DEBUG", "1")
	defer os.Unsetenv("RADIATION_SETUP_DEBUG")
	logger.Debugf("xyzzy")
	c.Check(s.logbuf.String(), Matches, `(?s).*DEBUG xyzzy\n`)
}

func (s *LogSuite) TestAppendTimestamp(c *C) {
	var b []byte
	b = logger.AppendTimestamp(b, timeForTest())
	c.Assert(string(b), Equals, "2024-03-05T06:07:08.009Z")
}
