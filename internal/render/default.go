package render

// DefaultTemplate lists every attribute in a two column table. Lists and
// dicts get a nested table; dict keys show their json alias label.
const DefaultTemplate = `
<table class="attribute-list">
  <tbody>
  {{- range .Feature.Attributes }}
    {{- if eq .Value.Type "list" }}
    <tr>
      <td class="identify-attr-title wrap"><i>{{ .Alias }}</i></td>
      <td>
        <table class="identify-attr-subtable">
          <tbody>
          {{- range .Value.Items }}
            {{- if eq .Type "dict" }}
              {{- range .Entries }}
            <tr>
              <td class="identify-attr-title wrap"><i>{{ .Label }}</i></td>
              <td class="identify-attr-value wrap">{{ render_value .Value }}</td>
            </tr>
              {{- end }}
            {{- else }}
            <tr>
              <td class="identify-attr-value identify-attr-single-value wrap" colspan="2">{{ render_value . }}</td>
            </tr>
            {{- end }}
            <tr>
              <td class="identify-attr-spacer" colspan="2"></td>
            </tr>
          {{- end }}
          </tbody>
        </table>
      </td>
    </tr>
    {{- else if eq .Value.Type "dict" }}
    <tr>
      <td class="identify-attr-title wrap"><i>{{ .Alias }}</i></td>
      <td>
        <table class="identify-attr-subtable">
          <tbody>
          {{- range .Value.Entries }}
            <tr>
              <td class="identify-attr-title wrap"><i>{{ .Label }}</i></td>
              <td class="identify-attr-value wrap">{{ render_value .Value }}</td>
            </tr>
          {{- end }}
          </tbody>
        </table>
      </td>
    </tr>
    {{- else }}
    <tr>
      <td class="identify-attr-title wrap"><i>{{ .Alias }}</i></td>
      <td class="identify-attr-value wrap">{{ render_value .Value }}</td>
    </tr>
    {{- end }}
  {{- end }}
  </tbody>
</table>
`
