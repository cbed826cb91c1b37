package helpers

import "fmt"

func fmtMessage(msgFormat string, msgArgs ...interface{}) string {
	if len(msgArgs) == 0 {
		return msgFormat
	}
	return fmt.Sprintf(msgFormat, msgArgs...)
}
