package server

import (
	"encoding/csv"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// utf8BOM makes spreadsheet tools pick UTF-8 instead of guessing.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// streamCSV writes a CSV attachment with a UTF-8 BOM prefix.
func streamCSV(c *gin.Context, filename string, header []string, rows [][]string) error {
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Status(http.StatusOK)

	if _, err := c.Writer.Write(utf8BOM); err != nil {
		return err
	}
	w := csv.NewWriter(c.Writer)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
