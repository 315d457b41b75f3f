package bufferstore

import (
	"os"
	"path/filepath"

	"github.com/pkg/xattr"
	"github.com/relex/gotils/logger"
	"github.com/relex/session-sink/base"
	"github.com/relex/session-sink/util"
)

const sessionDirHashLength = 8
const xattrSessionKey = "user.sessionSinkKey"

// makeSessionDir builds the per-session buffer subdir under the root path. The dir
// name is the sanitized key plus a hash suffix to prevent collision; the original
// key is stored as an extended attribute on the subdir itself, for operators
// inspecting leftovers. An xattr failure is logged only, since nothing reads the
// label back at runtime.
func makeSessionDir(parentLogger logger.Logger, rootPath string, key base.SessionKey) string {
	keyStr := key.String()
	dirname := sanitizeDirName(keyStr)
	hash := util.MD5ToHexdigest(keyStr)
	path := filepath.Join(rootPath, dirname+"."+hash[len(hash)-sessionDirHashLength:])

	if derr := os.MkdirAll(path, 0755); derr != nil {
		parentLogger.Errorf("error creating session dir path='%s': %s", path, derr.Error())
	}
	if xerr := xattr.Set(path, xattrSessionKey, []byte(keyStr)); xerr != nil {
		parentLogger.Warnf("error labelling key on session dir path='%s': %s", path, xerr)
	}
	return path
}

func sanitizeDirName(name string) string {
	result := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch c {
		case 0, '/':
			c = '_'
		}
		result[i] = c
	}
	return util.StringFromBytes(result)
}
