package catalog

import (
	"fmt"

	"github.com/openfroyo/zabbix-web/pkg/config"
)

// Kind is the type of a managed resource.
type Kind string

const (
	KindClass          Kind = "Class"
	KindFile           Kind = "File"
	KindPackage        Kind = "Package"
	KindService        Kind = "Service"
	KindYumrepo        Kind = "Yumrepo"
	KindAptSource      Kind = "Apt::Source"
	KindAptKey         Kind = "Apt::Key"
	KindSelboolean     Kind = "Selboolean"
	KindVhost          Kind = "Apache::Vhost"
	KindConcatFragment Kind = "Concat::Fragment"
)

// Ref names a resource by kind and title.
type Ref struct {
	Kind  Kind   `json:"kind" yaml:"kind"`
	Title string `json:"title" yaml:"title"`
}

// String returns the reference as Kind[Title].
func (r Ref) String() string {
	return fmt.Sprintf("%s[%s]", r.Kind, r.Title)
}

// ResourceParams is the desired state of one resource kind.
type ResourceParams interface {
	Kind() Kind
}

// Resource is one declared unit of desired state.
type Resource struct {
	Kind    Kind           `json:"kind" yaml:"kind"`
	Title   string         `json:"title" yaml:"title"`
	Params  ResourceParams `json:"params" yaml:"params"`
	Require []Ref          `json:"require,omitempty" yaml:"require,omitempty"`
	Notify  []Ref          `json:"notify,omitempty" yaml:"notify,omitempty"`
	Before  []Ref          `json:"before,omitempty" yaml:"before,omitempty"`
}

// NewResource declares a resource of the kind its params belong to.
func NewResource(title string, params ResourceParams) *Resource {
	return &Resource{Kind: params.Kind(), Title: title, Params: params}
}

// Ref returns the reference to r.
func (r *Resource) Ref() Ref {
	return Ref{Kind: r.Kind, Title: r.Title}
}

// Requires adds require relationships and returns r.
func (r *Resource) Requires(refs ...Ref) *Resource {
	r.Require = append(r.Require, refs...)
	return r
}

// Notifies adds notify relationships and returns r.
func (r *Resource) Notifies(refs ...Ref) *Resource {
	r.Notify = append(r.Notify, refs...)
	return r
}

// OrderedBefore adds before relationships and returns r.
func (r *Resource) OrderedBefore(refs ...Ref) *Resource {
	r.Before = append(r.Before, refs...)
	return r
}

// Ensure values.
const (
	EnsurePresent   = "present"
	EnsureFile      = "file"
	EnsureDirectory = "directory"
	EnsureRunning   = "running"
)

// Class is a configuration class with its parameters.
type Class struct {
	Parameters *config.OrderedMap `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

func (Class) Kind() Kind { return KindClass }

// File is a file or directory with exact content.
type File struct {
	Ensure  string `json:"ensure" yaml:"ensure"`
	Owner   string `json:"owner,omitempty" yaml:"owner,omitempty"`
	Group   string `json:"group,omitempty" yaml:"group,omitempty"`
	Mode    string `json:"mode,omitempty" yaml:"mode,omitempty"`
	Content string `json:"content,omitempty" yaml:"content,omitempty"`
}

func (File) Kind() Kind { return KindFile }

// Package is an installed package.
type Package struct {
	Ensure   string `json:"ensure" yaml:"ensure"`
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`
}

func (Package) Kind() Kind { return KindPackage }

// Service is a running system service.
type Service struct {
	Ensure string `json:"ensure" yaml:"ensure"`
	Enable bool   `json:"enable" yaml:"enable"`
}

func (Service) Kind() Kind { return KindService }

// Yumrepo is a yum repository definition.
type Yumrepo struct {
	Descr    string `json:"descr" yaml:"descr"`
	BaseURL  string `json:"baseurl" yaml:"baseurl"`
	GPGCheck string `json:"gpgcheck" yaml:"gpgcheck"`
	GPGKey   string `json:"gpgkey" yaml:"gpgkey"`
	Enabled  string `json:"enabled" yaml:"enabled"`
}

func (Yumrepo) Kind() Kind { return KindYumrepo }

// AptKey is an apt repository signing key.
type AptKey struct {
	ID     string `json:"id" yaml:"id"`
	Source string `json:"source" yaml:"source"`
}

func (AptKey) Kind() Kind { return KindAptKey }

// AptSource is an apt source list entry.
type AptSource struct {
	Location string `json:"location" yaml:"location"`
	Release  string `json:"release" yaml:"release"`
	Repos    string `json:"repos" yaml:"repos"`
}

func (AptSource) Kind() Kind { return KindAptSource }

// Selboolean is an SELinux boolean.
type Selboolean struct {
	Value      string `json:"value" yaml:"value"`
	Persistent bool   `json:"persistent" yaml:"persistent"`
}

func (Selboolean) Kind() Kind { return KindSelboolean }

// Vhost is an Apache virtual host. Attributes are passed to the web server
// provider in order.
type Vhost struct {
	Attributes *config.OrderedMap `json:"attributes" yaml:"attributes"`
}

func (Vhost) Kind() Kind { return KindVhost }

// ConcatFragment is one fragment of a file assembled by concat.
type ConcatFragment struct {
	Target  string `json:"target" yaml:"target"`
	Order   string `json:"order" yaml:"order"`
	Content string `json:"content" yaml:"content"`
}

func (ConcatFragment) Kind() Kind { return KindConcatFragment }
