package namecheap

import (
	"errors"
	"testing"

	"golang.org/x/text/encoding/unicode"
)

const successBody = `<?xml version="1.0" encoding="utf-16"?>
<interface-response>
  <Command>SETDNSHOST</Command>
  <Language>eng</Language>
  <IP>203.0.113.7</IP>
  <ErrCount>0</ErrCount>
  <errors />
  <ResponseCount>0</ResponseCount>
  <responses />
  <Done>true</Done>
  <debug><![CDATA[]]></debug>
</interface-response>`

const passwordErrorBody = `<?xml version="1.0" encoding="utf-16"?>
<interface-response>
  <Command>SETDNSHOST</Command>
  <Language>eng</Language>
  <ErrCount>1</ErrCount>
  <errors>
    <Err1>Passwords do not match</Err1>
  </errors>
  <ResponseCount>1</ResponseCount>
  <responses>
    <response>
      <ResponseNumber>304156</ResponseNumber>
      <ResponseString>Validation error; invalid ; password</ResponseString>
    </response>
  </responses>
  <Done>true</Done>
  <debug><![CDATA[]]></debug>
</interface-response>`

const twoErrorsBody = `<?xml version="1.0" encoding="utf-16"?>
<interface-response>
  <ErrCount>2</ErrCount>
  <errors>
    <Err1>No Records updated. A record not Found;</Err1>
    <Err2>Domain name not active</Err2>
  </errors>
  <responses>
    <response>
      <ResponseNumber>380091</ResponseNumber>
      <ResponseString>Validation error; invalid ; host</ResponseString>
    </response>
    <response>
      <ResponseNumber>316153</ResponseNumber>
      <ResponseString>Domain inactive</ResponseString>
    </response>
  </responses>
  <Done>true</Done>
</interface-response>`

func TestParseResponse_Success(t *testing.T) {
	resp, err := ParseResponse([]byte(successBody))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Failed() {
		t.Error("expected success")
	}
	if resp.Command != "SETDNSHOST" {
		t.Errorf("expected command SETDNSHOST, got %q", resp.Command)
	}
	if !resp.Done {
		t.Error("expected Done to be true")
	}
	ip, ok := resp.EchoedIP()
	if !ok || ip.String() != "203.0.113.7" {
		t.Errorf("EchoedIP() = %v, %v", ip, ok)
	}
}

func TestParseResponse_ProviderError(t *testing.T) {
	resp, err := ParseResponse([]byte(passwordErrorBody))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !resp.Failed() {
		t.Fatal("expected failure")
	}
	first := resp.FirstError()
	if first.Code != "304156" {
		t.Errorf("expected code 304156, got %q", first.Code)
	}
	if first.Description != "Passwords do not match" {
		t.Errorf("unexpected description %q", first.Description)
	}
	if _, ok := resp.EchoedIP(); ok {
		t.Error("expected no echoed IP")
	}
}

func TestParseResponse_MultipleErrorsPairedInOrder(t *testing.T) {
	resp, err := ParseResponse([]byte(twoErrorsBody))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.ErrCount != 2 || len(resp.Errors) != 2 {
		t.Fatalf("expected 2 errors, got count=%d entries=%d", resp.ErrCount, len(resp.Errors))
	}
	if resp.Errors[0].Code != "380091" || resp.Errors[1].Code != "316153" {
		t.Errorf("unexpected codes %+v", resp.Errors)
	}
	if resp.Errors[1].Description != "Domain name not active" {
		t.Errorf("unexpected description %q", resp.Errors[1].Description)
	}
}

func TestParseResponse_StrayErrorsChildKeepsPairing(t *testing.T) {
	body := `<?xml version="1.0" encoding="utf-16"?>
<interface-response>
  <ErrCount>2</ErrCount>
  <errors>
    <Note>ignored</Note>
    <Err1>No Records updated. A record not Found;</Err1>
    <Err2>Domain name not active</Err2>
  </errors>
  <responses>
    <response><ResponseNumber>380091</ResponseNumber></response>
    <response><ResponseNumber>316153</ResponseNumber></response>
  </responses>
  <Done>true</Done>
</interface-response>`

	resp, err := ParseResponse([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %+v", resp.Errors)
	}
	if resp.Errors[0].Code != "380091" || resp.Errors[1].Code != "316153" {
		t.Errorf("codes shifted by the non-Err element: %+v", resp.Errors)
	}
}

func TestParseResponse_ErrCountWithoutEntries(t *testing.T) {
	body := `<interface-response><ErrCount>1</ErrCount><errors/><Done>true</Done></interface-response>`

	resp, err := ParseResponse([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Failed() {
		t.Fatal("expected failure")
	}
	if first := resp.FirstError(); first.Code != "" || first.Description == "" {
		t.Errorf("expected generic description, got %+v", first)
	}
}

func TestParseResponse_MissingErrCount(t *testing.T) {
	body := `<interface-response><IP>198.51.100.4</IP><Done>true</Done></interface-response>`

	resp, err := ParseResponse([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Failed() {
		t.Error("missing ErrCount without errors should count as success")
	}
}

func TestParseResponse_ResponseStringFallback(t *testing.T) {
	body := `<interface-response>
  <ErrCount>1</ErrCount>
  <errors><Err1></Err1></errors>
  <responses><response><ResponseNumber>304156</ResponseNumber><ResponseString>invalid password</ResponseString></response></responses>
</interface-response>`

	resp, err := ParseResponse([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first := resp.FirstError(); first.Description != "invalid password" {
		t.Errorf("expected ResponseString fallback, got %q", first.Description)
	}
}

func TestParseResponse_UTF16WithBOM(t *testing.T) {
	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	body, err := enc.Bytes([]byte(successBody))
	if err != nil {
		t.Fatalf("encoding: %v", err)
	}

	resp, err := ParseResponse(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ip, ok := resp.EchoedIP(); !ok || ip.String() != "203.0.113.7" {
		t.Errorf("EchoedIP() = %v, %v", ip, ok)
	}
}

func TestParseResponse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"html", "<html><body>502 Bad Gateway</body></html>"},
		{"plain text", "ok"},
		{"truncated", "<interface-response><ErrCount>0"},
		{"bad errcount", "<interface-response><ErrCount>many</ErrCount></interface-response>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseResponse([]byte(tt.body))
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("expected ErrMalformed, got %v", err)
			}
		})
	}
}
