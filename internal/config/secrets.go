package config

import (
	"context"
	"encoding/json"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// vendorSecrets is the JSON payload stored in Secret Manager
type vendorSecrets struct {
	DentalCityAPIKey string          `json:"dentalCityApiKey"`
	NetSuite         NetSuiteSecrets `json:"netsuite"`
}

// LoadVendorSecrets fills vendor API secrets from GCP Secret Manager when
// VENDOR_SECRETS_GCP_PROJECT is set. Values already present in the
// environment win over the secret.
// Secret name format: projects/{project}/secrets/{name}/versions/latest
func (c *Config) LoadVendorSecrets(ctx context.Context) error {
	if c.Vendors.SecretsProject == "" {
		return nil
	}

	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.Vendors.SecretsProject, c.Vendors.SecretName)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	return c.Vendors.applySecrets(result.Payload.Data)
}

func (v *VendorsConfig) applySecrets(data []byte) error {
	var s vendorSecrets
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}

	v.DentalCityAPIKey = withDefault(v.DentalCityAPIKey, s.DentalCityAPIKey)
	ns := &v.NetSuite
	ns.RestletURL = withDefault(ns.RestletURL, s.NetSuite.RestletURL)
	ns.Realm = withDefault(ns.Realm, s.NetSuite.Realm)
	ns.ConsumerKey = withDefault(ns.ConsumerKey, s.NetSuite.ConsumerKey)
	ns.ConsumerSecret = withDefault(ns.ConsumerSecret, s.NetSuite.ConsumerSecret)
	ns.TokenID = withDefault(ns.TokenID, s.NetSuite.TokenID)
	ns.TokenSecret = withDefault(ns.TokenSecret, s.NetSuite.TokenSecret)
	ns.SearchScript = withDefault(ns.SearchScript, s.NetSuite.SearchScript)
	ns.OrderScript = withDefault(ns.OrderScript, s.NetSuite.OrderScript)
	ns.CustomerScript = withDefault(ns.CustomerScript, s.NetSuite.CustomerScript)
	ns.Deploy = withDefault(ns.Deploy, s.NetSuite.Deploy)
	return nil
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}
