package google

import (
	"fmt"
	"strings"
)

// syncColumn holds the sync id, the last of the mirrored columns.
const syncColumn = "H"

// findSyncRow returns the zero-based row index whose single cell equals
// syncID, or -1. values is the result of reading the sync id column.
func findSyncRow(values [][]any, syncID string) int {
	syncID = strings.TrimSpace(syncID)
	if syncID == "" {
		return -1
	}
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == syncID {
			return i
		}
	}
	return -1
}

// rowRange returns the A1 range of one mirrored row; row is one-based.
func rowRange(sheet string, row int) string {
	return fmt.Sprintf("%s!A%d:%s%d", sheet, row, syncColumn, row)
}
