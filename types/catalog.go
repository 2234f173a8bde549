package types

// Country is an entry of GET /countries/.
type Country struct {
	Name      string `json:"name"`
	ISOAlpha2 string `json:"isoAlpha2"`
}

// ProductGroup groups brands of the same product type.
type ProductGroup struct {
	ProductType string  `json:"productType"`
	Brands      []Brand `json:"brands"`
}

type Brand struct {
	BrandName string    `json:"brandName"`
	BrandSlug string    `json:"brandSlug"`
	Order     int       `json:"order"`
	Variants  []Variant `json:"variants"`
}

// Variant is a purchasable SKU.
type Variant struct {
	ID             string         `json:"id"`
	SendPrice      Amount         `json:"sendPrice"`
	SendCurrency   string         `json:"sendCurrency"`
	Price          VariantPrice   `json:"price"`
	ReferenceType  *ReferenceType `json:"referenceType,omitempty"`
	RequiredFields []FieldSpec    `json:"requiredFields,omitempty"`
}

type VariantPrice struct {
	FiatCurrency string `json:"fiatCurrency"`
	FiatValue    Amount `json:"fiatValue,omitempty"`
}

// ReferenceType describes what the buyer reference is (email, phone...).
type ReferenceType struct {
	Name  string `json:"name"`
	Regex string `json:"regex,omitempty"`
}

// FieldSpec names a required field the buyer must fill in.
type FieldSpec struct {
	Name string `json:"name"`
}

// CatalogNetwork is an entry of GET /networks/.
type CatalogNetwork struct {
	Name        string      `json:"name"`
	Key         string      `json:"key"`
	ChainID     ChainID     `json:"chainId"`
	NetworkType string      `json:"networkType"`
	RPCURL      string      `json:"rpcUrl"`
	NativeToken NativeToken `json:"nativeToken"`
}

type NativeToken struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// Token is an entry of GET /tokens/{networkKey}.
type Token struct {
	Key      string `json:"key"`
	Symbol   string `json:"symbol,omitempty"`
	Name     string `json:"name,omitempty"`
	Address  string `json:"address"`
	Decimals int    `json:"decimals,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}
