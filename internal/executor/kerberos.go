package executor

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/masterzen/winrm"
	"github.com/masterzen/winrm/soap"
	"gopkg.in/jcmturner/gokrb5.v7/client"
	"gopkg.in/jcmturner/gokrb5.v7/config"
	"gopkg.in/jcmturner/gokrb5.v7/credentials"
	"gopkg.in/jcmturner/gokrb5.v7/spnego"
)

// kerberosTransporter adapts a gokrb5 SPNEGO-authenticated HTTP client
// to winrm.Transporter, so a HostTarget configured for
// transport=kerberos negotiates a ticket instead of using NTLM. The
// ticket comes from the ambient credential cache (KRB5CCNAME, kinit),
// which is how a domain-joined collector box holds its identity.
type kerberosTransporter struct {
	endpoint *winrm.Endpoint
	client   *spnego.Client
}

func newKerberosTransporter() winrm.Transporter {
	return &kerberosTransporter{}
}

func (k *kerberosTransporter) Transport(endpoint *winrm.Endpoint) error {
	cfgPath := os.Getenv("KRB5_CONFIG")
	if cfgPath == "" {
		cfgPath = "/etc/krb5.conf"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load krb5 config: %w", err)
	}

	ccPath := strings.TrimPrefix(os.Getenv("KRB5CCNAME"), "FILE:")
	if ccPath == "" {
		ccPath = fmt.Sprintf("/tmp/krb5cc_%d", os.Getuid())
	}
	ccache, err := credentials.LoadCCache(ccPath)
	if err != nil {
		return fmt.Errorf("load kerberos ccache: %w", err)
	}
	krbClient, err := client.NewClientFromCCache(ccache, cfg)
	if err != nil {
		return fmt.Errorf("build kerberos client: %w", err)
	}

	spn := "HTTP/" + endpoint.Host
	k.endpoint = endpoint
	k.client = spnego.NewClient(krbClient, &http.Client{Timeout: endpoint.Timeout}, spn)
	return nil
}

func (k *kerberosTransporter) Post(_ *winrm.Client, request *soap.SoapMessage) (string, error) {
	scheme := "http"
	if k.endpoint.HTTPS {
		scheme = "https"
	}
	url := fmt.Sprintf("%s://%s:%d/wsman", scheme, k.endpoint.Host, k.endpoint.Port)

	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(request.String()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/soap+xml;charset=UTF-8")

	resp, err := k.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("wsman post to %s: http %d: %s", k.endpoint.Host, resp.StatusCode, body)
	}
	return string(body), nil
}
