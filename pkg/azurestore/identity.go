package azurestore

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

// Credential implements storage.Identity over the standard Azure credential
// chain: client secret credentials when AzureClientID/AzureClientSecret are
// configured, falling back to DefaultAzureCredential (managed identity,
// workload identity, az cli) otherwise.
type Credential struct {
	cred azcore.TokenCredential
}

// NewCredential builds a Credential. If clientID and clientSecret are both
// set it uses an explicit client secret credential against tenantID;
// otherwise it falls back to DefaultAzureCredential.
func NewCredential(tenantID, clientID, clientSecret string) (*Credential, error) {
	if clientID != "" && clientSecret != "" {
		cred, err := azidentity.NewClientSecretCredential(tenantID, clientID, clientSecret, nil)
		if err != nil {
			return nil, err
		}
		return &Credential{cred: cred}, nil
	}
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, err
	}
	return &Credential{cred: cred}, nil
}

// TokenCredential exposes the underlying azcore.TokenCredential for SDK
// client constructors.
func (c *Credential) TokenCredential() azcore.TokenCredential {
	return c.cred
}

// Verify satisfies storage.Identity by requesting a token for the Azure
// management scope; failure means the credential chain could not produce a
// usable token.
func (c *Credential) Verify(ctx context.Context) error {
	_, err := c.cred.GetToken(ctx, policy.TokenRequestOptions{
		Scopes: []string{"https://management.azure.com/.default"},
	})
	return err
}
