// Package registry integrates with the national business registry. It looks
// up a debtor by tax ID and condenses the registry record into a 0-100
// credibility score. The score is handed back to the caller, who passes it
// explicitly into risk scoring.
package registry

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/beevik/etree"
	"github.com/mantleflow/risk-service/internal/config"
	"github.com/sirupsen/logrus"
)

// CredibleThreshold is the minimum score considered credible.
const CredibleThreshold = 60

// Credibility is the condensed registry verdict for one debtor.
type Credibility struct {
	TaxID       string    `json:"tax_id"`
	CompanyName string    `json:"company_name"`
	Status      string    `json:"status"`
	Registered  time.Time `json:"registered_at"`
	Score       float64   `json:"osint_score"`
	IsCredible  bool      `json:"is_credible"`
}

// Client handles integration with the business registry
type Client struct {
	url    string
	client *http.Client
	log    *logrus.Logger
}

// NewClient initializes a new registry client
func NewClient(cfg *config.Config, log *logrus.Logger) *Client {
	return &Client{
		url: cfg.RegistryURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log,
	}
}

// buildSOAPRequest creates a SOAP request for a business lookup
func (c *Client) buildSOAPRequest(taxID string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
		<soap12:Envelope xmlns:soap12="http://www.w3.org/2003/05/soap-envelope">
			<soap12:Body>
				<GetBusinessInfo xmlns="http://registry.example.gov.vn/">
					<taxId>%s</taxId>
				</GetBusinessInfo>
			</soap12:Body>
		</soap12:Envelope>`, taxID)
}

// sendRequest sends the SOAP request to the registry
func (c *Client) sendRequest(soapRequest string) ([]byte, error) {
	req, err := http.NewRequest("POST", c.url, bytes.NewBuffer([]byte(soapRequest)))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}

	req.Header.Set("Content-Type", "application/soap+xml; charset=utf-8")
	req.Header.Set("SOAPAction", "http://registry.example.gov.vn/GetBusinessInfo")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %v", err)
	}

	c.log.Debugf("Registry XML response: %s", string(body))

	return body, nil
}

// parseXMLResponse extracts the business record from the registry XML
func (c *Client) parseXMLResponse(rawBody []byte) (*Credibility, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(rawBody); err != nil {
		return nil, fmt.Errorf("failed to parse XML: %v", err)
	}

	record := doc.FindElement("//BusinessInfo")
	if record == nil {
		return nil, fmt.Errorf("no business record found in XML")
	}

	cred := &Credibility{}
	if el := record.FindElement("./TaxId"); el != nil {
		cred.TaxID = el.Text()
	}
	if el := record.FindElement("./CompanyName"); el != nil {
		cred.CompanyName = el.Text()
	}
	if el := record.FindElement("./Status"); el != nil {
		cred.Status = el.Text()
	}
	if el := record.FindElement("./RegisteredDate"); el != nil {
		registered, err := time.Parse("2006-01-02", el.Text())
		if err != nil {
			return nil, fmt.Errorf("failed to parse registered date: %v", err)
		}
		cred.Registered = registered
	}
	if cred.TaxID == "" || cred.Status == "" {
		return nil, fmt.Errorf("incomplete business record in XML")
	}

	return cred, nil
}

// scoreRecord derives a 0-100 credibility score from the registry record:
// a base of 40 for being registered at all, 40 more for an active status,
// and up to 20 for registration age at 4 points per full year.
func scoreRecord(cred *Credibility, now time.Time) float64 {
	score := 40.0
	if cred.Status == "ACTIVE" {
		score += 40
	}
	years := now.Sub(cred.Registered).Hours() / (24 * 365)
	age := years * 4
	if age > 20 {
		age = 20
	}
	if age > 0 {
		score += age
	}
	if score > 100 {
		score = 100
	}
	return score
}

// Lookup retrieves the registry record for a tax ID and scores it
func (c *Client) Lookup(taxID string) (*Credibility, error) {
	soapRequest := c.buildSOAPRequest(taxID)
	body, err := c.sendRequest(soapRequest)
	if err != nil {
		return nil, err
	}

	cred, err := c.parseXMLResponse(body)
	if err != nil {
		return nil, err
	}

	cred.Score = scoreRecord(cred, time.Now())
	cred.IsCredible = cred.Score >= CredibleThreshold

	c.log.Infof("Registry lookup for %s: status %s, score %.0f", taxID, cred.Status, cred.Score)
	return cred, nil
}
