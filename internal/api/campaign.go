package api

import (
	"encoding/csv"
	"log"
	"net/http"
	"strings"

	"campaign-gateway/internal/campaign"

	"github.com/gin-gonic/gin"
)

type CampaignHandler struct {
	Manager *campaign.Manager
}

func NewCampaignHandler(manager *campaign.Manager) *CampaignHandler {
	return &CampaignHandler{Manager: manager}
}

type ImportRequest struct {
	Rows []campaign.ImportRow `json:"rows"`
}

// Import seeds the campaign from (name, phone) rows, either as a JSON body
// or as an uploaded CSV file with name,phone columns. Rows with invalid
// numbers are skipped and reported per-row.
func (h *CampaignHandler) Import(c *gin.Context) {
	rows, err := h.readRows(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(rows) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no rows provided"})
		return
	}

	result := h.Manager.Import(rows)
	log.Printf("Campaign import: %d rows, %d sent, %d skipped", result.Total, result.Sent, result.Skipped)
	c.JSON(http.StatusOK, result)
}

func (h *CampaignHandler) readRows(c *gin.Context) ([]campaign.ImportRow, error) {
	if file, err := c.FormFile("file"); err == nil {
		f, err := file.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()

		reader := csv.NewReader(f)
		reader.FieldsPerRecord = -1
		records, err := reader.ReadAll()
		if err != nil {
			return nil, err
		}

		rows := make([]campaign.ImportRow, 0, len(records))
		for i, record := range records {
			if len(record) < 2 {
				continue
			}
			name := strings.TrimSpace(record[0])
			phone := strings.TrimSpace(record[1])
			// A leading header row ("name,phone") is not an import error.
			if i == 0 && !campaign.ValidNumber(phone) && strings.EqualFold(name, "name") {
				continue
			}
			rows = append(rows, campaign.ImportRow{Name: name, Phone: phone})
		}
		return rows, nil
	}

	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, err
	}
	return req.Rows, nil
}
