package scan

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"

	"google.golang.org/genai"

	"prodtrack-backend/config"
)

// Model reads a sheet image and answers with the JSON text of the extraction
// schema.
type Model interface {
	Extract(ctx context.Context, image []byte, mimeType string) (string, error)
}

const instruction = `Analizza questa scheda tecnica di produzione e restituisci un JSON.
Tutti i campi devono essere presenti. Se un valore non è leggibile, usa i valori di default indicati.

- scheda: numero della scheda (default 0)
- mcoil: codice del coil
- mcoil_kg: peso del coil in kg
- spessore: spessore (es. 0.3)
- mcoil_larghezza: larghezza (es. 300)
- mcoil_lega: lega (es. "Rame", "Ottone")
- mcoil_stato_fisico: stato fisico (es. "Crudo", "Ricotto", default "N/D")
- conferma_voce: "SI" oppure "NO" (default "SI")
- id_cliente: codice cliente breve (es. "C001", "ACME"), "GENERICO" se assente
- cliente_nome: nome leggibile del cliente
- ordine_kg_richiesto: kg richiesti dall'ordine
- ordine_kg_lavorato: kg lavorati, uguale ai richiesti se non indicato
- misura: misura finale (spessore o larghezza)`

var responseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		keySheet:         {Type: genai.TypeNumber},
		keyCoilCode:      {Type: genai.TypeString},
		keyCoilKg:        {Type: genai.TypeNumber},
		keyThickness:     {Type: genai.TypeNumber},
		keyWidth:         {Type: genai.TypeNumber},
		keyAlloy:         {Type: genai.TypeString},
		keyPhysicalState: {Type: genai.TypeString},
		keyConfirmation:  {Type: genai.TypeString},
		keyClientID:      {Type: genai.TypeString},
		keyClientName:    {Type: genai.TypeString},
		keyRequestedKg:   {Type: genai.TypeNumber},
		keyWorkedKg:      {Type: genai.TypeNumber},
		keyMeasure:       {Type: genai.TypeNumber},
	},
	Required: []string{
		keySheet, keyCoilCode, keyCoilKg, keyThickness, keyWidth,
		keyClientID, keyPhysicalState, keyConfirmation, keyMeasure,
	},
}

// GeminiModel calls the Gemini API with the fixed instruction and schema.
type GeminiModel struct {
	client *genai.Client
	model  string
}

// NewGeminiModel builds the extraction client from configuration.
func NewGeminiModel(ctx context.Context, cfg config.ExtractionConfig) (*GeminiModel, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("extraction API key is not configured")
	}

	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			log.Printf("Warning: Invalid proxy URL %q: %v. Extraction will not use a proxy.", cfg.HTTPProxy, err)
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create extraction client: %w", err)
	}
	return &GeminiModel{client: client, model: cfg.Model}, nil
}

// Extract sends the image and returns the model's JSON text.
func (g *GeminiModel) Extract(ctx context.Context, image []byte, mimeType string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(image, mimeType),
			genai.NewPartFromText(instruction),
		}, genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   responseSchema,
	})
	if err != nil {
		return "", fmt.Errorf("extraction request failed: %w", err)
	}
	return resp.Text(), nil
}
